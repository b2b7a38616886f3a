// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/pocketfolio/pocketfolio/internal/utils"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the snapshot database (always absolute)
	Port     int
	DevMode  bool
	LogLevel string

	// Upstream Folio API
	FolioAPIBaseURL string
	FolioAPIKey     string

	// Market clock
	MarketTimezone string

	// Feed configuration
	TrackedSymbols  []string
	PortfolioID     string
	PricesInterval  time.Duration
	SummaryInterval time.Duration
	MoversInterval  time.Duration

	// Snapshot cache cleanup schedule (cron expression with seconds field)
	CacheCleanupSchedule string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Resolve the data directory to an absolute path and make sure it exists.
	// The snapshot database lives here; everything else is in-memory.
	dataDir := getEnv("POCKETFOLIO_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("POCKETFOLIO_PORT", 8090),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		FolioAPIBaseURL: getEnv("FOLIO_API_BASE_URL", "https://api.pocketfolio.app"),
		FolioAPIKey:     getEnv("FOLIO_API_KEY", ""),

		MarketTimezone: getEnv("MARKET_TIMEZONE", "America/New_York"),

		TrackedSymbols:  getEnvAsSlice("TRACKED_SYMBOLS", []string{"AAPL", "MSFT", "GOOG", "AMZN", "NVDA", "TSLA"}),
		PortfolioID:     getEnv("PORTFOLIO_ID", "default"),
		PricesInterval:  getEnvAsDuration("PRICES_REFRESH_INTERVAL", 30*time.Second),
		SummaryInterval: getEnvAsDuration("SUMMARY_REFRESH_INTERVAL", 60*time.Second),
		MoversInterval:  getEnvAsDuration("MOVERS_REFRESH_INTERVAL", 5*time.Minute),

		CacheCleanupSchedule: getEnv("CACHE_CLEANUP_SCHEDULE", "0 */10 * * * *"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.FolioAPIBaseURL == "" {
		return fmt.Errorf("FOLIO_API_BASE_URL is required")
	}
	if len(c.TrackedSymbols) == 0 {
		return fmt.Errorf("TRACKED_SYMBOLS must list at least one symbol")
	}
	if c.PricesInterval <= 0 || c.SummaryInterval <= 0 || c.MoversInterval <= 0 {
		return fmt.Errorf("refresh intervals must be positive")
	}
	return nil
}

// SnapshotDBPath returns the path of the snapshot cache database
func (c *Config) SnapshotDBPath() string {
	return filepath.Join(c.DataDir, "snapshots.db")
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

func getEnvAsSlice(key string, defaultValue []string) []string {
	if parsed := utils.ParseCSV(os.Getenv(key)); parsed != nil {
		return parsed
	}
	return defaultValue
}
