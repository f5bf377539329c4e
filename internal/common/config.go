package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the orchestrator configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Database    DatabaseConfig  `toml:"database"`
	Workers     WorkersConfig   `toml:"workers"`
	Dispatch    DispatchConfig  `toml:"dispatch"`
	Retry       RetryConfig     `toml:"retry"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Reporter    ReporterConfig  `toml:"reporter"`
	Evidence    EvidenceConfig  `toml:"evidence"`
	Logging     LoggingConfig   `toml:"logging"`
	TLS         TLSConfig       `toml:"tls"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path         string `toml:"path"`           // SQLite database file
	LogStorePath string `toml:"log_store_path"` // Badger directory for per-job automation logs
	BaseDataDir  string `toml:"base_data_dir"`  // Root for db/evidence/log paths when they are relative
}

// WorkersConfig describes the worker pool the dispatcher submits jobs to.
type WorkersConfig struct {
	Endpoints     []string      `toml:"endpoints"`      // Worker /execute URLs
	Timeout       time.Duration `toml:"timeout"`        // Per-request execute timeout
	HealthTimeout time.Duration `toml:"health_timeout"` // Health probe timeout
}

// DispatchConfig bounds the dispatch loop.
type DispatchConfig struct {
	MaxWorkers int     `toml:"max_workers"`  // Concurrent dispatch tasks
	BatchSize  int     `toml:"batch_size"`   // Jobs leased per queue poll
	RatePerSec float64 `toml:"rate_per_sec"` // Outbound dispatch rate limit (0 = unlimited)
}

// RetryConfig governs transient-failure handling. MaxAttempts bounds the
// transport retries inside one dispatch task; the per-job re-dispatch cap
// is the job's own max_retries field.
type RetryConfig struct {
	MaxAttempts int           `toml:"max_attempts"` // Transport attempts per worker call
	MaxBackoff  time.Duration `toml:"max_backoff"`  // Cap on the in-task transport backoff
	Delay       time.Duration `toml:"delay"`        // Base delay before a job is re-dispatched
	MaxLockAge  time.Duration `toml:"max_lock_age"` // Lease age before the sweeper reclaims it
}

// SchedulerConfig holds the periodic task intervals.
type SchedulerConfig struct {
	PollInterval         time.Duration `toml:"poll_interval"`          // Queue poll
	StatusInterval       time.Duration `toml:"status_interval"`        // Worker status reconciliation
	MetricsInterval      time.Duration `toml:"metrics_interval"`       // Metric sampling
	RecoveryInterval     time.Duration `toml:"recovery_interval"`      // Stale-lock sweep
	CleanupHour          int           `toml:"cleanup_hour"`           // Daily evidence cleanup hour (0-23)
	HealthReportInterval time.Duration `toml:"health_report_interval"` // 0 disables the health report task
}

// ReporterConfig points at the external status endpoint.
type ReporterConfig struct {
	Endpoint string        `toml:"endpoint"` // Callback URL; empty disables reporting
	Timeout  time.Duration `toml:"timeout"`
}

type EvidenceConfig struct {
	Dir           string `toml:"dir"`            // Evidence file root (<dir>/job_<id>/...)
	RetentionDays int    `toml:"retention_days"` // Screenshots and files older than this are removed
}

type LoggingConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn", "error"
	Dir   string `toml:"dir"`   // Log file directory
}

type TLSConfig struct {
	CertPath string `toml:"cert_path"`
	KeyPath  string `toml:"key_path"`
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability; only
// deployment-facing settings belong in fibreflow.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path:         "./data/fibreflow.db",
			LogStorePath: "./data/joblogs",
			BaseDataDir:  "./data",
		},
		Workers: WorkersConfig{
			Endpoints:     []string{},
			Timeout:       30 * time.Second,
			HealthTimeout: 2 * time.Second,
		},
		Dispatch: DispatchConfig{
			MaxWorkers: 5,
			BatchSize:  10,
			RatePerSec: 20,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			MaxBackoff:  30 * time.Second,
			Delay:       60 * time.Second,
			MaxLockAge:  10 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			PollInterval:         5 * time.Second,
			StatusInterval:       5 * time.Second,
			MetricsInterval:      60 * time.Second,
			RecoveryInterval:     10 * time.Minute,
			CleanupHour:          2,
			HealthReportInterval: 0, // disabled unless configured
		},
		Reporter: ReporterConfig{
			Endpoint: "",
			Timeout:  10 * time.Second,
		},
		Evidence: EvidenceConfig{
			Dir:           "./data/evidence",
			RetentionDays: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "./logs",
		},
		TLS: TLSConfig{},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier
// files; environment variables override all files; CLI flags are applied
// afterwards by the caller via ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// The flat names (ORCHESTRATOR_HOST, WORKER_ENDPOINTS, ...) are the
// deployment surface shared with the worker fleet; FIBREFLOW_* variants
// cover the ambient settings.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FIBREFLOW_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}
	if dev := os.Getenv("DEVELOPMENT_MODE"); dev != "" {
		if d, err := strconv.ParseBool(dev); err == nil && d {
			config.Environment = "development"
		}
	}

	// Server
	if host := os.Getenv("ORCHESTRATOR_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("ORCHESTRATOR_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	// Workers
	if endpoints := os.Getenv("WORKER_ENDPOINTS"); endpoints != "" {
		parsed := []string{}
		for _, e := range strings.Split(endpoints, ",") {
			if trimmed := strings.TrimSpace(e); trimmed != "" {
				parsed = append(parsed, trimmed)
			}
		}
		config.Workers.Endpoints = parsed
	}
	if timeout := os.Getenv("WORKER_TIMEOUT"); timeout != "" {
		if d, ok := parseDurationValue(timeout); ok {
			config.Workers.Timeout = d
		}
	}

	// Dispatch
	if maxWorkers := os.Getenv("MAX_WORKERS"); maxWorkers != "" {
		if mw, err := strconv.Atoi(maxWorkers); err == nil && mw > 0 {
			config.Dispatch.MaxWorkers = mw
		}
	}
	if batchSize := os.Getenv("BATCH_SIZE"); batchSize != "" {
		if bs, err := strconv.Atoi(batchSize); err == nil && bs > 0 {
			config.Dispatch.BatchSize = bs
		}
	}

	// Retry
	if maxAttempts := os.Getenv("MAX_RETRY_ATTEMPTS"); maxAttempts != "" {
		if ma, err := strconv.Atoi(maxAttempts); err == nil && ma >= 0 {
			config.Retry.MaxAttempts = ma
		}
	}
	if delay := os.Getenv("RETRY_DELAY"); delay != "" {
		if d, ok := parseDurationValue(delay); ok {
			config.Retry.Delay = d
		}
	}

	// Scheduler
	if poll := os.Getenv("JOB_POLL_INTERVAL"); poll != "" {
		if d, ok := parseDurationValue(poll); ok {
			config.Scheduler.PollInterval = d
		}
	}
	if metrics := os.Getenv("METRICS_INTERVAL"); metrics != "" {
		if d, ok := parseDurationValue(metrics); ok {
			config.Scheduler.MetricsInterval = d
		}
	}
	if cleanupHour := os.Getenv("CLEANUP_HOUR"); cleanupHour != "" {
		if h, err := strconv.Atoi(cleanupHour); err == nil && h >= 0 && h <= 23 {
			config.Scheduler.CleanupHour = h
		}
	}

	// Reporter
	if endpoint := os.Getenv("CALLBACK_ENDPOINT"); endpoint != "" {
		config.Reporter.Endpoint = endpoint
	}
	if timeout := os.Getenv("CALLBACK_TIMEOUT"); timeout != "" {
		if d, ok := parseDurationValue(timeout); ok {
			config.Reporter.Timeout = d
		}
	}

	// Evidence
	if retention := os.Getenv("EVIDENCE_RETENTION_DAYS"); retention != "" {
		if r, err := strconv.Atoi(retention); err == nil && r > 0 {
			config.Evidence.RetentionDays = r
		}
	}
	if evidenceDir := os.Getenv("EVIDENCE_DIR"); evidenceDir != "" {
		config.Evidence.Dir = evidenceDir
	}

	// Filesystem layout
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if baseDir := os.Getenv("BASE_DATA_DIR"); baseDir != "" {
		config.Database.BaseDataDir = baseDir
	}
	if logDir := os.Getenv("LOG_DIR"); logDir != "" {
		config.Logging.Dir = logDir
	}

	// TLS
	if certPath := os.Getenv("SSL_CERT_PATH"); certPath != "" {
		config.TLS.CertPath = certPath
	}
	if keyPath := os.Getenv("SSL_KEY_PATH"); keyPath != "" {
		config.TLS.KeyPath = keyPath
	}

	// Logging
	if level := os.Getenv("FIBREFLOW_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// parseDurationValue accepts either a duration string ("30s", "5m") or a
// bare integer treated as seconds, which is how the flat deployment
// variables are documented.
func parseDurationValue(s string) (time.Duration, bool) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, true
	}
	if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the loaded configuration for unusable values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Dispatch.MaxWorkers <= 0 {
		return fmt.Errorf("dispatch max_workers must be positive, got %d", c.Dispatch.MaxWorkers)
	}
	if c.Dispatch.BatchSize <= 0 {
		return fmt.Errorf("dispatch batch_size must be positive, got %d", c.Dispatch.BatchSize)
	}
	if c.Scheduler.CleanupHour < 0 || c.Scheduler.CleanupHour > 23 {
		return fmt.Errorf("scheduler cleanup_hour %d out of range 0-23", c.Scheduler.CleanupHour)
	}
	if c.Retry.MaxLockAge <= 0 {
		return fmt.Errorf("retry max_lock_age must be positive")
	}
	for _, e := range c.Workers.Endpoints {
		if !strings.HasPrefix(e, "http://") && !strings.HasPrefix(e, "https://") {
			return fmt.Errorf("worker endpoint %q is not an http(s) URL", e)
		}
	}
	if (c.TLS.CertPath == "") != (c.TLS.KeyPath == "") {
		return fmt.Errorf("tls cert_path and key_path must be set together")
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// TLSEnabled reports whether the server should terminate TLS itself.
func (c *Config) TLSEnabled() bool {
	return c.TLS.CertPath != "" && c.TLS.KeyPath != "" && c.IsProduction()
}

// ListenAddr returns the host:port bind address for the API server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// EvidenceJobDir returns the evidence directory for one job.
func (c *Config) EvidenceJobDir(jobID int64) string {
	return filepath.Join(c.Evidence.Dir, fmt.Sprintf("job_%d", jobID))
}
