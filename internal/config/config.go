// Package config resolves runtime defaults for the toolkit. All
// configuration is reachable from CLI flags; environment variables only
// override the built-in defaults and none of them is required.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the query-side defaults.
type Config struct {
	CallingAET   string
	Timeout      time.Duration
	MaxPDULength uint32
	Log          LogConfig
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// Load builds the configuration from defaults and optional environment
// overrides. A .env file is honored when present.
func Load() (*Config, error) {
	// Missing .env is not an error
	_ = godotenv.Load()

	cfg := &Config{
		CallingAET:   getEnv("PACS_CALLING_AET", "PACS_TOOLKIT"),
		Timeout:      getDurationEnv("PACS_TIMEOUT", 30*time.Second),
		MaxPDULength: uint32(getIntEnv("PACS_MAX_PDU_LENGTH", 16384)),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.CallingAET == "" || len(c.CallingAET) > 16 {
		return fmt.Errorf("calling AE title must be 1-16 characters, got %q", c.CallingAET)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
