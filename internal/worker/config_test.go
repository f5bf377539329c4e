package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	config := LoadConfig()

	assert.Equal(t, 8081, config.Port)
	assert.Equal(t, "providers.yaml", config.ManifestPath)
	assert.Equal(t, DefaultLedgerTTL, config.LedgerTTL)
	assert.False(t, config.DevelopmentMode)
	assert.Equal(t, "info", config.LogLevel)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("WORKER_HOST", "10.0.0.5")
	t.Setenv("WORKER_PORT", "9090")
	t.Setenv("PROVIDERS_MANIFEST", "/etc/fibreflow/providers.yaml")
	t.Setenv("LEDGER_TTL", "5m")
	t.Setenv("DEVELOPMENT_MODE", "true")
	t.Setenv("WORKER_LOG_LEVEL", "debug")

	config := LoadConfig()

	assert.Equal(t, "10.0.0.5", config.Host)
	assert.Equal(t, 9090, config.Port)
	assert.Equal(t, "/etc/fibreflow/providers.yaml", config.ManifestPath)
	assert.Equal(t, 5*time.Minute, config.LedgerTTL)
	assert.True(t, config.DevelopmentMode)
	assert.Equal(t, "debug", config.LogLevel)
}

func TestLoadConfig_MalformedValuesIgnored(t *testing.T) {
	t.Setenv("WORKER_PORT", "not-a-port")
	t.Setenv("LEDGER_TTL", "eventually")
	t.Setenv("DEVELOPMENT_MODE", "maybe")

	config := LoadConfig()

	assert.Equal(t, 8081, config.Port)
	assert.Equal(t, DefaultLedgerTTL, config.LedgerTTL)
	assert.False(t, config.DevelopmentMode)
}

func TestListenAddr(t *testing.T) {
	config := &Config{Host: "", Port: 8081}
	assert.Equal(t, ":8081", config.ListenAddr())

	config.Host = "127.0.0.1"
	assert.Equal(t, "127.0.0.1:8081", config.ListenAddr())
}
