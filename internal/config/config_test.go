package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ALLOCATOR_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, 730, cfg.PriceLookback)
	assert.False(t, cfg.Backup.Enabled())
	assert.True(t, filepath.IsAbs(cfg.DataDir))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ALLOCATOR_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "9191")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("PRICE_LOOKBACK_DAYS", "504")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, 504, cfg.PriceLookback)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("ALLOCATOR_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "70000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")
}

func TestLoad_InvalidLookback(t *testing.T) {
	t.Setenv("ALLOCATOR_DATA_DIR", t.TempDir())
	t.Setenv("PRICE_LOOKBACK_DAYS", "1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookback")
}

func TestBackupConfig_Enabled(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     *BackupConfig
		enabled bool
	}{
		{"nil config", nil, false},
		{"empty", &BackupConfig{}, false},
		{"bucket only", &BackupConfig{Bucket: "b"}, false},
		{
			"complete",
			&BackupConfig{Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"},
			true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.enabled, tc.cfg.Enabled())
		})
	}
}

func TestHistoryDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ALLOCATOR_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.DataDir, "history"), cfg.HistoryDir())
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	t.Setenv("ALLOCATOR_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "not-a-number")
	t.Setenv("BACKUP_RETENTION", "many")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, 7, cfg.Backup.Retention)
}
