package prices

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Provider fetches daily close prices from an external market-data source.
type Provider interface {
	FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]DailyPrice, error)
}

// EODClient retrieves end-of-day price history over HTTP as CSV
// (date,open,high,low,close,volume). The API key is optional; providers
// that need one receive it as a query parameter.
type EODClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

// NewEODClient creates a price history client.
func NewEODClient(baseURL, apiKey string, log zerolog.Logger) *EODClient {
	return &EODClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("client", "eod").Logger(),
	}
}

// FetchDaily downloads daily prices for a symbol in [from, to].
func (c *EODClient) FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]DailyPrice, error) {
	q := url.Values{}
	q.Set("s", symbol)
	q.Set("d1", from.Format("20060102"))
	q.Set("d2", to.Format("20060102"))
	q.Set("i", "d")
	if c.apiKey != "" {
		q.Set("api_token", c.apiKey)
	}

	reqURL := fmt.Sprintf("%s/q/d/l/?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build price request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price request failed for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price request for %s returned status %d", symbol, resp.StatusCode)
	}

	prices, err := parseCSV(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price CSV for %s: %w", symbol, err)
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("count", len(prices)).
		Msg("Fetched daily prices")
	return prices, nil
}

// parseCSV reads date,open,high,low,close[,volume] rows. A header row is
// detected and skipped; rows with unparsable numbers are dropped rather than
// failing the whole download.
func parseCSV(r io.Reader) ([]DailyPrice, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var prices []DailyPrice
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 5 {
			continue
		}
		if first {
			first = false
			if _, err := time.Parse("2006-01-02", record[0]); err != nil {
				continue // header row
			}
		}

		open, err1 := strconv.ParseFloat(record[1], 64)
		high, err2 := strconv.ParseFloat(record[2], 64)
		low, err3 := strconv.ParseFloat(record[3], 64)
		closePx, err4 := strconv.ParseFloat(record[4], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		if _, err := time.Parse("2006-01-02", record[0]); err != nil {
			continue
		}

		p := DailyPrice{Date: record[0], Open: open, High: high, Low: low, Close: closePx}
		if len(record) > 5 {
			if v, err := strconv.ParseInt(record[5], 10, 64); err == nil {
				p.Volume = &v
			}
		}
		prices = append(prices, p)
	}
	return prices, nil
}
