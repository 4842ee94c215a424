package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

// Repository backends
const (
	RepoPostgres = "postgres"
	RepoMemory   = "memory"
)

// Config holds application configuration
type Config struct {
	DatabaseURL string
	RepoKind    string
	GRPCPort    string
	APIToken    string
	LogLevel    string
	LogPretty   bool

	HealthInterval time.Duration

	MarketTimezone string
	BaseCurrency   string
	SeedOwnerID    string

	SnapshotSchedule    string
	PerformanceSchedule string
	SnapshotMaxRetries  int
	SnapshotBackoff     time.Duration
	SnapshotConcurrency int

	ReconstructionCacheSize int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DB_CONN_STR", ""),
		RepoKind:    getEnv("REPO_KIND", RepoPostgres),
		GRPCPort:    getEnv("GRPC_PORT", ":8080"),
		APIToken:    getEnv("API_TOKEN", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnvAsBool("LOG_PRETTY", false),

		HealthInterval: getEnvAsDuration("HEALTH_INTERVAL", 10*time.Second),

		MarketTimezone: getEnv("MARKET_TIMEZONE", "America/Lima"),
		BaseCurrency:   getEnv("DEFAULT_BASE_CURRENCY", "PEN"),
		SeedOwnerID:    getEnv("SEED_OWNER_ID", ""),

		SnapshotSchedule:    getEnv("SNAPSHOT_SCHEDULE", "0 30 18 * * *"),
		PerformanceSchedule: getEnv("PERFORMANCE_SCHEDULE", "0 0 19 * * *"),
		SnapshotMaxRetries:  getEnvAsInt("SNAPSHOT_MAX_RETRIES", 3),
		SnapshotBackoff:     getEnvAsDuration("SNAPSHOT_RETRY_BACKOFF", 200*time.Millisecond),
		SnapshotConcurrency: getEnvAsInt("SNAPSHOT_CONCURRENCY", 4),

		ReconstructionCacheSize: getEnvAsInt("RECONSTRUCTION_CACHE_SIZE", 1024),
	}

	if cfg.DatabaseURL == "" {
		// If explicit string is missing, build it from individual vars (Docker friendly)
		cfg.DatabaseURL = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", "postgres"),
			getEnv("DB_NAME", "portfolio"),
		)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.RepoKind != RepoPostgres && c.RepoKind != RepoMemory {
		return fmt.Errorf("REPO_KIND must be %q or %q, got %q", RepoPostgres, RepoMemory, c.RepoKind)
	}
	if c.RepoKind == RepoPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DB_CONN_STR is required")
	}
	if _, err := time.LoadLocation(c.MarketTimezone); err != nil {
		return fmt.Errorf("MARKET_TIMEZONE: %w", err)
	}

	if err := domain.ValidateCurrency(c.BaseCurrency); err != nil {
		return fmt.Errorf("DEFAULT_BASE_CURRENCY: %w", err)
	}
	if c.SeedOwnerID != "" {
		if _, err := uuid.Parse(c.SeedOwnerID); err != nil {
			return fmt.Errorf("SEED_OWNER_ID: %w", err)
		}
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.SnapshotSchedule); err != nil {
		return fmt.Errorf("SNAPSHOT_SCHEDULE: %w", err)
	}
	if _, err := parser.Parse(c.PerformanceSchedule); err != nil {
		return fmt.Errorf("PERFORMANCE_SCHEDULE: %w", err)
	}

	if c.SnapshotMaxRetries < 1 {
		return fmt.Errorf("SNAPSHOT_MAX_RETRIES must be at least 1")
	}
	if c.SnapshotBackoff < 0 {
		return fmt.Errorf("SNAPSHOT_RETRY_BACKOFF cannot be negative")
	}
	if c.SnapshotConcurrency < 1 {
		return fmt.Errorf("SNAPSHOT_CONCURRENCY must be at least 1")
	}
	if c.HealthInterval <= 0 {
		return fmt.Errorf("HEALTH_INTERVAL must be positive")
	}
	if c.ReconstructionCacheSize < 1 {
		return fmt.Errorf("RECONSTRUCTION_CACHE_SIZE must be at least 1")
	}
	return nil
}

// Location returns the market timezone used to pick FX sessions
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
