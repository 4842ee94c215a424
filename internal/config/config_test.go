package config

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_CONN_STR", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "ledger")
	t.Setenv("REPO_KIND", "")
	t.Setenv("API_TOKEN", "")
	t.Setenv("HEALTH_INTERVAL", "")
	t.Setenv("DEFAULT_BASE_CURRENCY", "")
	t.Setenv("SEED_OWNER_ID", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "host=db port=5432 user=postgres password=postgres dbname=ledger sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, RepoPostgres, cfg.RepoKind)
	assert.Equal(t, ":8080", cfg.GRPCPort)
	assert.Equal(t, 3, cfg.SnapshotMaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.SnapshotBackoff)
	assert.Equal(t, 10*time.Second, cfg.HealthInterval)
	assert.Empty(t, cfg.APIToken)
	assert.Equal(t, "PEN", cfg.BaseCurrency)
	assert.Equal(t, "America/Lima", cfg.Location().String())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_CONN_STR", "postgres://x")
	t.Setenv("REPO_KIND", "memory")
	t.Setenv("SNAPSHOT_MAX_RETRIES", "5")
	t.Setenv("SNAPSHOT_RETRY_BACKOFF", "1s")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("SNAPSHOT_CONCURRENCY", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://x", cfg.DatabaseURL)
	assert.Equal(t, RepoMemory, cfg.RepoKind)
	assert.Equal(t, 5, cfg.SnapshotMaxRetries)
	assert.Equal(t, time.Second, cfg.SnapshotBackoff)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, 4, cfg.SnapshotConcurrency, "unparsable values fall back to the default")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DatabaseURL:             "postgres://x",
			RepoKind:                RepoPostgres,
			MarketTimezone:          "America/Lima",
			SnapshotSchedule:        "0 30 18 * * *",
			PerformanceSchedule:     "@daily",
			SnapshotMaxRetries:      3,
			SnapshotConcurrency:     1,
			ReconstructionCacheSize: 10,
			HealthInterval:          time.Second,
			BaseCurrency:            "USD",
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"Valid config", func(c *Config) {}, ""},
		{"Unknown repo kind", func(c *Config) { c.RepoKind = "sqlite" }, `REPO_KIND must be "postgres" or "memory", got "sqlite"`},
		{"Bad schedule", func(c *Config) { c.SnapshotSchedule = "every day" }, "SNAPSHOT_SCHEDULE"},
		{"Zero retries", func(c *Config) { c.SnapshotMaxRetries = 0 }, "SNAPSHOT_MAX_RETRIES must be at least 1"},
		{"Bad timezone", func(c *Config) { c.MarketTimezone = "Mars/Olympus" }, "MARKET_TIMEZONE"},
		{"Bad base currency", func(c *Config) { c.BaseCurrency = "usd" }, "DEFAULT_BASE_CURRENCY"},
		{"Bad seed owner", func(c *Config) { c.SeedOwnerID = "owner-1" }, "SEED_OWNER_ID"},
		{"Zero health interval", func(c *Config) { c.HealthInterval = 0 }, "HEALTH_INTERVAL must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.errMsg)
			}
		})
	}
}
