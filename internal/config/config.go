// Package config provides environment-driven configuration for the mining CLI.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Config holds the workgroup credentials and client tuning.
type Config struct {
	WorkgroupID   string        // MINING_WG_ID
	WorkgroupKey  Secret        // MINING_WG_KEY
	APIURL        string        // MINING_API_URL
	AuthURL       string        // MINING_AUTH_URL (includes the realm)
	LogLevel      string        // MINING_LOG_LEVEL (default "info")
	Timeout       time.Duration // MINING_TIMEOUT (default 30s)
	InstanceCache int           // MINING_INSTANCE_CACHE (default 256)
	Concurrency   int           // MINING_CONCURRENCY (default 4)
	TLSInsecure   bool          // MINING_TLS_INSECURE (default false)
}

// Load reads configuration from a .env file (if present) and the environment.
// Variables already set in the environment win over the .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		WorkgroupID:  strings.TrimSpace(os.Getenv("MINING_WG_ID")),
		WorkgroupKey: Secret(strings.TrimSpace(os.Getenv("MINING_WG_KEY"))),
		APIURL:       strings.TrimSpace(os.Getenv("MINING_API_URL")),
		AuthURL:      strings.TrimSpace(os.Getenv("MINING_AUTH_URL")),
		LogLevel:     envOrDefault("MINING_LOG_LEVEL", "info"),
	}

	timeout, err := time.ParseDuration(envOrDefault("MINING_TIMEOUT", "30s"))
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("MINING_TIMEOUT must be a positive duration")
	}
	cfg.Timeout = timeout

	cacheSize, err := strconv.Atoi(envOrDefault("MINING_INSTANCE_CACHE", "256"))
	if err != nil || cacheSize < 1 || cacheSize > 65536 {
		return nil, fmt.Errorf("MINING_INSTANCE_CACHE must be an integer between 1 and 65536")
	}
	cfg.InstanceCache = cacheSize

	concurrency, err := strconv.Atoi(envOrDefault("MINING_CONCURRENCY", "4"))
	if err != nil || concurrency < 1 || concurrency > 32 {
		return nil, fmt.Errorf("MINING_CONCURRENCY must be an integer between 1 and 32")
	}
	cfg.Concurrency = concurrency

	insecure, err := strconv.ParseBool(envOrDefault("MINING_TLS_INSECURE", "false"))
	if err != nil {
		return nil, fmt.Errorf("MINING_TLS_INSECURE must be a boolean")
	}
	cfg.TLSInsecure = insecure

	return cfg, nil
}

// Validate checks that the configuration is complete enough to reach the platform.
func (c *Config) Validate() error {
	if err := c.validateCredentials(); err != nil {
		return err
	}

	if err := c.validateURLs(); err != nil {
		return err
	}

	return c.validateLogLevel()
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}

	return fallback
}
