package prices

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSVSkipsHeaderAndBadRows(t *testing.T) {
	input := strings.Join([]string{
		"Date,Open,High,Low,Close,Volume",
		"2026-08-18,100,102,99,101,5000",
		"2026-08-19,101,notanumber,100,102,6000",
		"2026-08-20,102,104,101,103.5,7000",
		"garbage line",
	}, "\n")

	prices, err := parseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, "2026-08-18", prices[0].Date)
	assert.Equal(t, 101.0, prices[0].Close)
	require.NotNil(t, prices[0].Volume)
	assert.Equal(t, int64(5000), *prices[0].Volume)
	assert.Equal(t, "2026-08-20", prices[1].Date)
	assert.Equal(t, 103.5, prices[1].Close)
}

func TestParseCSVNoHeader(t *testing.T) {
	input := "2026-08-18,100,102,99,101,5000\n"
	prices, err := parseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, "2026-08-18", prices[0].Date)
}

func TestEODClientFetchDaily(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte("Date,Open,High,Low,Close,Volume\n2026-08-19,100,102,99,101,5000\n"))
	}))
	defer server.Close()

	client := NewEODClient(server.URL, "secret", zerolog.Nop())
	from, _ := time.Parse("2006-01-02", "2026-07-01")
	to, _ := time.Parse("2006-01-02", "2026-08-19")

	prices, err := client.FetchDaily(context.Background(), "AAPL.US", from, to)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, 101.0, prices[0].Close)

	assert.Contains(t, gotQuery, "s=AAPL.US")
	assert.Contains(t, gotQuery, "d1=20260701")
	assert.Contains(t, gotQuery, "d2=20260819")
	assert.Contains(t, gotQuery, "api_token=secret")
}

func TestEODClientNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	client := NewEODClient(server.URL, "", zerolog.Nop())
	_, err := client.FetchDaily(context.Background(), "AAPL", time.Now().AddDate(0, -1, 0), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
