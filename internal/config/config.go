// Package config provides configuration management for the analysis engine.
// It loads settings from environment variables (a .env file is read first
// when present) with sensible defaults and validates them before the
// engine starts.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: HTTP server port, 0 picks a free one (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FORMAT: "json" or "console" (default: json)
//   - METRICS_ENABLED: Expose prometheus metrics on /metrics (default: true)
//   - SUBMIT_RATE_LIMIT: Job submissions per second per client, 0 disables (default: 5)
//   - SUBMIT_RATE_BURST: Submissions a client may send at once (default: 10)
//
// Execution:
//   - WORKER_POOL_SIZE: Number of row workers (default: number of CPUs)
//   - ROW_BUFFER_SIZE: Rows queued ahead of the workers (default: 4 per worker)
//   - PROGRESS_EVERY_ROWS: Report table progress every N rows (default: 1000)
//   - PROGRESS_INTERVAL: Also report progress after this long (default: 5s)
//
// Data:
//   - DATASTORE_TYPE: "csv", "sqlite", "postgres" or "memory" (default: csv)
//   - DATASTORE_DSN: Directory or file for csv, DSN for databases (default: ./data)
//   - REJECT_STORE_TYPE: "memory", "sqlite" or "postgres" (default: memory)
//   - REJECT_STORE_DSN: DSN of the reject store (required unless memory)
//
// Lookups:
//   - LOOKUP_DATABASE_NAME: Name components use to reference it (default: lookup)
//   - LOOKUP_DATABASE_TYPE: "sqlite" or "postgres" (optional)
//   - LOOKUP_DATABASE_DSN: DSN of the lookup database (required with a type)
//   - LOOKUP_CACHE_TTL: Lifetime of cached lookup results (default: 10m)
//
// Redis Configuration:
//   - REDIS_ADDRESS: Redis server address; empty keeps the lookup cache in process
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the analysis engine
type Config struct {
	Port           string
	LogLevel       string
	LogFormat      string
	MetricsEnabled bool

	SubmitRateLimit int
	SubmitRateBurst int

	WorkerPoolSize    int
	RowBufferSize     int
	ProgressEveryRows int
	ProgressInterval  time.Duration

	DatastoreType string
	DatastoreDSN  string

	RejectStoreType string
	RejectStoreDSN  string

	LookupDatabaseName string
	LookupDatabaseType string
	LookupDatabaseDSN  string
	LookupCacheTTL     time.Duration

	RedisAddress  string
	RedisPassword string
	RedisDB       int
}

// LoadDotEnv reads a .env file in the working directory when one exists.
// Variables already present in the environment win.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	return godotenv.Load()
}

// Load reads the configuration from the environment. It never fails;
// call Validate before using the result.
func Load() *Config {
	workers := getIntEnv("WORKER_POOL_SIZE", runtime.NumCPU())

	return &Config{
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		MetricsEnabled: getBoolEnv("METRICS_ENABLED", true),

		SubmitRateLimit: getIntEnv("SUBMIT_RATE_LIMIT", 5),
		SubmitRateBurst: getIntEnv("SUBMIT_RATE_BURST", 10),

		WorkerPoolSize:    workers,
		RowBufferSize:     getIntEnv("ROW_BUFFER_SIZE", workers*4),
		ProgressEveryRows: getIntEnv("PROGRESS_EVERY_ROWS", 1000),
		ProgressInterval:  getDurationEnv("PROGRESS_INTERVAL", 5*time.Second),

		DatastoreType: getEnv("DATASTORE_TYPE", "csv"),
		DatastoreDSN:  getEnv("DATASTORE_DSN", "./data"),

		RejectStoreType: getEnv("REJECT_STORE_TYPE", "memory"),
		RejectStoreDSN:  getEnv("REJECT_STORE_DSN", ""),

		LookupDatabaseName: getEnv("LOOKUP_DATABASE_NAME", "lookup"),
		LookupDatabaseType: getEnv("LOOKUP_DATABASE_TYPE", ""),
		LookupDatabaseDSN:  getEnv("LOOKUP_DATABASE_DSN", ""),
		LookupCacheTTL:     getDurationEnv("LOOKUP_CACHE_TTL", 10*time.Minute),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
	}
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv returns defaultValue when the variable is unset or not an integer
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getBoolEnv accepts the forms strconv.ParseBool does ("true", "1", "f", ...)
// and falls back to defaultValue for anything else.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv accepts time.ParseDuration strings ("500ms", "1m30s")
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks ranges and cross-field requirements. The application
// should call it after Load and before building the engine.
func (c *Config) Validate() error {
	// 0 lets the system pick a free port
	if port, err := strconv.Atoi(c.Port); err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 0 and 65535")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be 'json' or 'console'")
	}

	if c.SubmitRateLimit < 0 {
		return fmt.Errorf("SUBMIT_RATE_LIMIT must not be negative")
	}
	if c.SubmitRateLimit > 0 && c.SubmitRateBurst < 1 {
		return fmt.Errorf("SUBMIT_RATE_BURST must be a positive number")
	}

	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("WORKER_POOL_SIZE must be a positive number")
	}
	if c.RowBufferSize < 1 {
		return fmt.Errorf("ROW_BUFFER_SIZE must be a positive number")
	}
	if c.ProgressEveryRows < 1 {
		return fmt.Errorf("PROGRESS_EVERY_ROWS must be a positive number")
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("PROGRESS_INTERVAL must not be negative")
	}

	switch c.DatastoreType {
	case "csv", "sqlite", "postgres":
		if c.DatastoreDSN == "" {
			return fmt.Errorf("DATASTORE_DSN is required when using a %s datastore", c.DatastoreType)
		}
	case "memory":
	default:
		return fmt.Errorf("DATASTORE_TYPE must be 'csv', 'sqlite', 'postgres' or 'memory'")
	}

	switch c.RejectStoreType {
	case "memory":
	case "sqlite", "postgres":
		if c.RejectStoreDSN == "" {
			return fmt.Errorf("REJECT_STORE_DSN is required when using a %s reject store", c.RejectStoreType)
		}
	default:
		return fmt.Errorf("REJECT_STORE_TYPE must be 'memory', 'sqlite' or 'postgres'")
	}

	switch c.LookupDatabaseType {
	case "":
	case "sqlite", "postgres":
		if c.LookupDatabaseDSN == "" {
			return fmt.Errorf("LOOKUP_DATABASE_DSN is required when LOOKUP_DATABASE_TYPE is set")
		}
		if c.LookupDatabaseName == "" {
			return fmt.Errorf("LOOKUP_DATABASE_NAME must not be empty")
		}
	default:
		return fmt.Errorf("LOOKUP_DATABASE_TYPE must be 'sqlite' or 'postgres'")
	}

	if c.LookupCacheTTL <= 0 {
		return fmt.Errorf("LOOKUP_CACHE_TTL must be a positive duration")
	}

	if c.RedisAddress != "" && (c.RedisDB < 0 || c.RedisDB > 15) {
		return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
	}

	return nil
}

// HasLookupDatabase reports whether a lookup database is configured
func (c *Config) HasLookupDatabase() bool {
	return c.LookupDatabaseType != ""
}
