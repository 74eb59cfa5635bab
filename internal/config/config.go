// Package config provides configuration management for the risk analytics batch engine.
//
// Configuration is loaded from environment variables (with optional .env file support)
// with sensible defaults. Unlike a hosted service, this engine has no credential
// management layer of its own: provider credentials are the concern of whatever
// MarketDataSource implementation is wired in by the caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds batch-engine configuration.
type Config struct {
	DataDir  string // Base directory for the SQLite stores (always resolved to absolute)
	LogLevel string // debug, info, warn, error
	DevMode  bool

	// Retry/backoff tuning for the orchestrator's transient-error classification (spec §4.J).
	MaxRetries      int
	RetryBaseDelay  time.Duration // doubled per attempt: base, 2*base, 4*base, ...
	EngineTimeout   time.Duration // soft per-engine timeout (spec §5)
	BatchTimeout    time.Duration // global daily-batch timeout
	ChunkSize       int           // bulk-upsert chunk size for PositionGreeks (spec §4.C)
	AggregationTTL  time.Duration // portfolio-aggregation cache TTL (spec §4.D)
	HistoryWindow   int           // rolling window length in trading days for factors/risk/correlation (target 252)
	MinHistoryPoint int           // minimum data points before the factor engine regresses (spec §4.E: 60)

	// Open-question resolutions (spec.md §9), now concrete configuration flags.
	UseAbsoluteDelta    bool         // delta-adjusted exposure uses |delta| rather than signed delta
	CorrelationWeekday  time.Weekday // correlation engine runs on this weekday (spec §4.H)

	// Optional S3/R2 archival of the SQLite store after a successful trading-day snapshot.
	Archive ArchiveConfig
}

// ArchiveConfig configures optional off-box archival of the risk store.
// Left disabled (Enabled == false) means the orchestrator never touches S3.
type ArchiveConfig struct {
	Enabled  bool
	Bucket   string
	Prefix   string
	Endpoint string // non-empty to target an S3-compatible endpoint (e.g. Cloudflare R2)
	Region   string
}

// Load reads configuration from environment variables.
//
// dataDirOverride takes priority over RISK_DATA_DIR, which takes priority over
// the "./data" default.
func Load(dataDirOverride ...string) (*Config, error) {
	_ = godotenv.Load()

	var dataDir string
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("RISK_DATA_DIR", "")
		if dataDir == "" {
			dataDir = "./data"
		}
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
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		MaxRetries:         getEnvAsInt("BATCH_MAX_RETRIES", 3),
		RetryBaseDelay:     time.Duration(getEnvAsInt("BATCH_RETRY_BASE_SECONDS", 2)) * time.Second,
		EngineTimeout:      time.Duration(getEnvAsInt("BATCH_ENGINE_TIMEOUT_SECONDS", 120)) * time.Second,
		BatchTimeout:       time.Duration(getEnvAsInt("BATCH_GLOBAL_TIMEOUT_SECONDS", 3600)) * time.Second,
		ChunkSize:          getEnvAsInt("GREEKS_UPSERT_CHUNK_SIZE", 100),
		AggregationTTL:     time.Duration(getEnvAsInt("AGGREGATION_CACHE_TTL_SECONDS", 60)) * time.Second,
		HistoryWindow:      getEnvAsInt("RISK_HISTORY_WINDOW_DAYS", 252),
		MinHistoryPoint:    getEnvAsInt("RISK_MIN_HISTORY_POINTS", 60),
		UseAbsoluteDelta:   getEnvAsBool("DELTA_ADJUSTED_USE_ABSOLUTE", true),
		CorrelationWeekday: time.Weekday(getEnvAsInt("CORRELATION_WEEKDAY", int(time.Tuesday))),
		Archive: ArchiveConfig{
			Enabled:  getEnvAsBool("ARCHIVE_ENABLED", false),
			Bucket:   getEnv("ARCHIVE_BUCKET", ""),
			Prefix:   getEnv("ARCHIVE_PREFIX", "risk-snapshots"),
			Endpoint: getEnv("ARCHIVE_ENDPOINT", ""),
			Region:   getEnv("ARCHIVE_REGION", "auto"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("BATCH_MAX_RETRIES must be >= 0, got %d", c.MaxRetries)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("GREEKS_UPSERT_CHUNK_SIZE must be > 0, got %d", c.ChunkSize)
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("ARCHIVE_BUCKET required when ARCHIVE_ENABLED=true")
	}
	return nil
}

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
