package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port      string
	LogLevel  string
	LogFormat string

	// Dataset cache
	CacheBackend    string
	CacheDBPath     string
	MemoryCacheSize int

	// Raio-X source
	SourceBaseURL    string
	SourceCSVFile    string
	AvailableYears   []int
	FetchTimeout     time.Duration
	FetchMaxAttempts int
	FetchBackoffUnit time.Duration

	// AMQP (optional for the server, required by the worker)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	WarmOnStartup   bool
	RefreshInterval time.Duration

	// Insights
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	OpenAITimeout time.Duration
	// nil keeps the client default
	OpenAITemperature *float64

	invalidYears []string
}

func Load() *Config {
	years, invalid := parseYears(getEnv("AVAILABLE_YEARS", "2020,2021,2022"))
	cfg := &Config{
		Port:      getEnv("PORT", "8081"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		CacheBackend:    getEnv("CACHE_BACKEND", "sqlite"),
		CacheDBPath:     getEnv("CACHE_DB_PATH", "./data/custeio.db"),
		MemoryCacheSize: getEnvInt("MEMORY_CACHE_SIZE", 4),

		SourceBaseURL:    getEnv("SOURCE_BASE_URL", "https://repositorio.dados.gov.br/seges/raio-x"),
		SourceCSVFile:    getEnv("SOURCE_CSV_FILE", "custeio-administrativo.csv"),
		AvailableYears:   years,
		FetchTimeout:     getEnvDuration("FETCH_TIMEOUT", 60*time.Second),
		FetchMaxAttempts: getEnvInt("FETCH_MAX_ATTEMPTS", 10),
		FetchBackoffUnit: getEnvDuration("FETCH_BACKOFF_UNIT", time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "custeio"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "warm_datasets"),

		WarmOnStartup:   getEnvBool("WARM_ON_STARTUP", true),
		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 24*time.Hour),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
		OpenAITimeout: getEnvDuration("OPENAI_TIMEOUT", 60*time.Second),

		OpenAITemperature: getEnvFloatPtr("OPENAI_TEMPERATURE"),

		invalidYears: invalid,
	}

	return cfg
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// YearAvailable reports whether year is one of AvailableYears.
func (c *Config) YearAvailable(year int) bool {
	for _, y := range c.AvailableYears {
		if y == year {
			return true
		}
	}
	return false
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

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	// Validate cache backend
	switch c.CacheBackend {
	case "memory":
	case "sqlite":
		if c.CacheDBPath == "" {
			errors = append(errors, "cache database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.CacheDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create cache database directory '%s': %v", dir, err))
					}
				}
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid cache backend '%s': must be one of [memory sqlite]", c.CacheBackend))
	}
	if c.MemoryCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid memory cache size %d: must be at least 1", c.MemoryCacheSize))
	}

	// Validate source
	if u, err := url.Parse(c.SourceBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid source base URL '%s': must be an absolute http(s) URL", c.SourceBaseURL))
	}
	if c.SourceCSVFile == "" {
		errors = append(errors, "source CSV file name cannot be empty")
	}
	if len(c.invalidYears) > 0 {
		errors = append(errors, fmt.Sprintf("invalid available years %v: must be four digit years", c.invalidYears))
	} else if len(c.AvailableYears) == 0 {
		errors = append(errors, "at least one available year is required")
	}
	if c.FetchTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid fetch timeout %v: must be at least 1 second", c.FetchTimeout))
	}
	if c.FetchMaxAttempts < 1 || c.FetchMaxAttempts > 50 {
		errors = append(errors, fmt.Sprintf("invalid fetch max attempts %d: must be between 1 and 50", c.FetchMaxAttempts))
	}
	if c.FetchBackoffUnit < 0 || c.FetchBackoffUnit > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid fetch backoff unit %v: must be between 0 and 1 minute", c.FetchBackoffUnit))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RefreshInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at least 1 minute", c.RefreshInterval))
	}

	// Validate insights
	if c.OpenAIBaseURL != "" {
		if u, err := url.Parse(c.OpenAIBaseURL); err != nil || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid OpenAI base URL '%s'", c.OpenAIBaseURL))
		}
	}
	if c.OpenAITimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid OpenAI timeout %v: must be at least 1 second", c.OpenAITimeout))
	}
	if t := c.OpenAITemperature; t != nil && (*t < 0 || *t > 2) {
		errors = append(errors, fmt.Sprintf("invalid OpenAI temperature %v: must be between 0 and 2", *t))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// parseYears splits a comma separated list, returning the valid years
// sorted and deduplicated plus the tokens that are not years.
func parseYears(raw string) ([]int, []string) {
	seen := make(map[int]bool)
	var years []int
	var invalid []string
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		y, err := strconv.Atoi(tok)
		if err != nil || y < 1000 || y > 9999 {
			invalid = append(invalid, tok)
			continue
		}
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years, invalid
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

// getEnvFloatPtr returns nil when key is unset or not a number.
func getEnvFloatPtr(key string) *float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return &f
		}
	}
	return nil
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
