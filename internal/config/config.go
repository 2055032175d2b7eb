// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
//
// The fuzzy-match threshold and the history chunk window are empirically
// tuned against upstream behavior; they are configuration, not constants,
// because their correct values are defined by external systems.
type Config struct {
	DataDir           string // Base directory for the portfolio database and cache snapshot
	Port              int
	LogLevel          string
	DevMode           bool
	ReportingCurrency string // Currency portfolio totals are expressed in (default "TRY")
	CalendarAPIKey    string // collectapi key for the economic calendar (optional)

	FetchWorkers     int           // Parallel fetch worker-pool size
	FetchTimeout     time.Duration // Per-upstream-call timeout
	FuzzyThreshold   float64       // Minimum token-overlap score to accept a cross-registry match
	HistoryChunkDays int           // Maximum range per chunked history sub-request
	ChunkDelay       time.Duration // Delay between history chunks to avoid WAF blocks
	RiskFreeFallback float64       // Annual rate used when the bond yield fetch fails
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := os.Getenv("PIYASA_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".piyasa")
	}
	absDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDir,
		Port:              getEnvInt("PIYASA_PORT", 8090),
		LogLevel:          getEnv("PIYASA_LOG_LEVEL", "info"),
		DevMode:           getEnvBool("PIYASA_DEV_MODE", false),
		ReportingCurrency: getEnv("PIYASA_CURRENCY", "TRY"),
		CalendarAPIKey:    getEnv("PIYASA_CALENDAR_API_KEY", ""),
		FetchWorkers:      getEnvInt("PIYASA_FETCH_WORKERS", 8),
		FetchTimeout:      getEnvDuration("PIYASA_FETCH_TIMEOUT", 15*time.Second),
		FuzzyThreshold:    getEnvFloat("PIYASA_FUZZY_THRESHOLD", 0.35),
		HistoryChunkDays:  getEnvInt("PIYASA_HISTORY_CHUNK_DAYS", 90),
		ChunkDelay:        getEnvDuration("PIYASA_CHUNK_DELAY", 500*time.Millisecond),
		RiskFreeFallback:  getEnvFloat("PIYASA_RISK_FREE_FALLBACK", 0.30),
	}

	if cfg.FetchWorkers < 1 {
		return nil, fmt.Errorf("PIYASA_FETCH_WORKERS must be at least 1, got %d", cfg.FetchWorkers)
	}
	if cfg.HistoryChunkDays < 1 {
		return nil, fmt.Errorf("PIYASA_HISTORY_CHUNK_DAYS must be at least 1, got %d", cfg.HistoryChunkDays)
	}

	return cfg, nil
}

// DatabasePath returns the portfolio database location inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "portfolio.db")
}

// CacheSnapshotPath returns where the cache warm-start snapshot is stored.
func (c *Config) CacheSnapshotPath() string {
	return filepath.Join(c.DataDir, "cache.snapshot")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
