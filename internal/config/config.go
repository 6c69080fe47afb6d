package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Backends lists the accepted DATA_BACKEND values.
var Backends = []string{"memory", "sqlite"}

type Config struct {
	// HTTP Server
	Port        string
	CORSOrigins []string
	JWTSecret   string
	// RequestsPerMinute limits API calls per signed-in owner
	RequestsPerMinute int

	// Logging
	LogLevel  string
	LogFormat string

	// Backend selection
	DataBackend string
	SeedFile    string

	// Database
	SQLiteDBPath string

	// AMQP change notifications, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	// ResyncInterval reloads subscribed owners when notifications are lost
	ResyncInterval time.Duration

	// Mutations
	ClearBatchSize   int
	ClearConcurrency int
	MutationTimeout  time.Duration

	// Presentation
	CurrencySymbol string
	ViewCacheSize  int
	ViewCacheTTL   time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port:        getEnv("PORT", "8081"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		RequestsPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DataBackend: getEnv("DATA_BACKEND", "memory"),
		SeedFile:    getEnv("SEED_FILE", ""),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/tally.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "tally"),
		AMQPQueue:    getEnv("AMQP_QUEUE", ""),

		ResyncInterval: getEnvDuration("RESYNC_INTERVAL", 5*time.Minute),

		ClearBatchSize:   getEnvInt("CLEAR_BATCH_SIZE", 50),
		ClearConcurrency: getEnvInt("CLEAR_CONCURRENCY", 4),
		MutationTimeout:  getEnvDuration("MUTATION_TIMEOUT", 10*time.Second),

		CurrencySymbol: getEnv("CURRENCY_SYMBOL", "₹"),
		ViewCacheSize:  getEnvInt("VIEW_CACHE_SIZE", 256),
		ViewCacheTTL:   getEnvDuration("VIEW_CACHE_TTL", time.Minute),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if len(c.JWTSecret) < 16 {
		errors = append(errors, "JWT secret must be at least 16 characters")
	}

	if c.RequestsPerMinute < 1 || c.RequestsPerMinute > 10000 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be between 1 and 10000", c.RequestsPerMinute))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Validate data backend
	if !slices.Contains(Backends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, Backends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate AMQP only when it is configured
	if c.AMQPURL != "" {
		if c.DataBackend != "sqlite" {
			errors = append(errors, "AMQP change notifications require the sqlite backend")
		}
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.ResyncInterval < 0 {
			errors = append(errors, fmt.Sprintf("invalid resync interval %v: must not be negative", c.ResyncInterval))
		}
	}

	// Validate mutation tuning
	if c.ClearBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid clear batch size %d: must be at least 1", c.ClearBatchSize))
	} else if c.ClearBatchSize > 500 {
		errors = append(errors, fmt.Sprintf("invalid clear batch size %d: must be at most 500", c.ClearBatchSize))
	}
	if c.ClearConcurrency < 1 || c.ClearConcurrency > 32 {
		errors = append(errors, fmt.Sprintf("invalid clear concurrency %d: must be between 1 and 32", c.ClearConcurrency))
	}
	if c.MutationTimeout < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid mutation timeout %v: must be at least 100ms", c.MutationTimeout))
	} else if c.MutationTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid mutation timeout %v: must be at most 5 minutes", c.MutationTimeout))
	}

	if c.CurrencySymbol == "" {
		errors = append(errors, "currency symbol cannot be empty")
	}
	if c.ViewCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid view cache size %d: must not be negative", c.ViewCacheSize))
	}
	if c.ViewCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid view cache TTL %v: must not be negative", c.ViewCacheTTL))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
