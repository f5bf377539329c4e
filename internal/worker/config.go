package worker

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the worker service settings. The worker is deliberately
// lighter than the orchestrator: flags and flat environment variables
// only, no TOML.
type Config struct {
	Host            string
	Port            int
	ManifestPath    string
	LedgerTTL       time.Duration
	DevelopmentMode bool
	LogLevel        string
}

// NewDefaultConfig returns worker defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Host:         "",
		Port:         8081,
		ManifestPath: "providers.yaml",
		LedgerTTL:    DefaultLedgerTTL,
		LogLevel:     "info",
	}
}

// LoadConfig builds the worker config from defaults plus environment
// overrides.
func LoadConfig() *Config {
	config := NewDefaultConfig()

	if host := os.Getenv("WORKER_HOST"); host != "" {
		config.Host = host
	}
	if port := os.Getenv("WORKER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			config.Port = p
		}
	}
	if manifest := os.Getenv("PROVIDERS_MANIFEST"); manifest != "" {
		config.ManifestPath = manifest
	}
	if ttl := os.Getenv("LEDGER_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil && d > 0 {
			config.LedgerTTL = d
		}
	}
	if dev := os.Getenv("DEVELOPMENT_MODE"); dev != "" {
		if d, err := strconv.ParseBool(dev); err == nil {
			config.DevelopmentMode = d
		}
	}
	if level := os.Getenv("WORKER_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}

	return config
}

// ListenAddr returns the host:port bind address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
