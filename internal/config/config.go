// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for all databases (always absolute)
	Port      int
	LogLevel  string
	LogPretty bool
	DevMode   bool

	// Market data provider (EOD close prices)
	PriceAPIBaseURL  string
	PriceAPIKey      string
	PriceLookback    int // trading days of history kept warm per symbol
	RefreshSchedule  string
	RefreshOnStartup bool

	// Database maintenance
	CheckpointSchedule string

	Backup *BackupConfig
}

// BackupConfig holds S3-compatible backup storage configuration.
// Backups are disabled unless bucket and credentials are all present.
type BackupConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // custom endpoint for R2/MinIO style storage
	AccessKeyID     string
	SecretAccessKey string
	Retention       int // days an archive is kept, 0 keeps forever
	Schedule        string
}

// Enabled reports whether backup settings are complete enough to run.
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.Bucket != "" && b.AccessKeyID != "" && b.SecretAccessKey != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("ALLOCATOR_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		Port:               getEnvAsInt("PORT", 8090),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogPretty:          getEnvAsBool("LOG_PRETTY", false),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		PriceAPIBaseURL:    getEnv("PRICE_API_BASE_URL", "https://stooq.com"),
		PriceAPIKey:        getEnv("PRICE_API_KEY", ""),
		PriceLookback:      getEnvAsInt("PRICE_LOOKBACK_DAYS", 730),
		RefreshSchedule:    getEnv("PRICE_REFRESH_SCHEDULE", "0 30 6 * * TUE-SAT"),
		RefreshOnStartup:   getEnvAsBool("PRICE_REFRESH_ON_STARTUP", false),
		CheckpointSchedule: getEnv("WAL_CHECKPOINT_SCHEDULE", "0 0 * * * *"),
		Backup: &BackupConfig{
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Prefix:          getEnv("BACKUP_S3_PREFIX", "allocator"),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			Retention:       getEnvAsInt("BACKUP_RETENTION", 7),
			Schedule:        getEnv("BACKUP_SCHEDULE", "0 15 5 * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// HistoryDir returns the directory holding the price history database.
func (c *Config) HistoryDir() string {
	return filepath.Join(c.DataDir, "history")
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PriceLookback < 2 {
		return fmt.Errorf("price lookback must cover at least 2 trading days, got %d", c.PriceLookback)
	}
	if c.Backup.Enabled() && c.Backup.Retention < 1 {
		return fmt.Errorf("backup retention must be at least 1, got %d", c.Backup.Retention)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
