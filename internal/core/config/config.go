package config

import (
	"time"

	redisclient "github.com/vietddude/logwatcher/internal/infra/redis"
	"github.com/vietddude/logwatcher/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Processor ProcessorConfig    `yaml:"processor"`
	Cursor    CursorConfig       `yaml:"cursor"`
	Lock      LockConfig         `yaml:"lock"`
	Sink      SinkConfig         `yaml:"sink"`
	Redis     redisclient.Config `yaml:"redis"`
	Database  postgres.Config    `yaml:"database"`
	Tracing   TracingConfig      `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ProcessorConfig holds settings for the polling cycle.
type ProcessorConfig struct {
	ElasticURL           string        `yaml:"elastic_url"`
	MaxLookBehindSeconds int64         `yaml:"max_look_behind_seconds"` // 0 = no cap
	ScanInterval         time.Duration `yaml:"scan_interval"`
	LockKey              string        `yaml:"lock_key"`
	HTTPTimeout          time.Duration `yaml:"http_timeout"`
	CycleTimeout         time.Duration `yaml:"cycle_timeout"` // 0 = none
	RunOnStart           bool          `yaml:"run_on_start"`
}

// Backend names shared by the cursor and lock sections.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// CursorConfig selects where the last processed timestamp lives.
type CursorConfig struct {
	Backend string `yaml:"backend"` // memory, redis, postgres
	Key     string `yaml:"key"`
}

// LockConfig selects the re-entrancy guard.
type LockConfig struct {
	Backend string `yaml:"backend"` // memory, redis
	// TTL is the redis lease length. A holder whose lease lapses skips its
	// cursor commit, so ttl should comfortably exceed refresh hiccups.
	TTL time.Duration `yaml:"ttl"`
}

// Sink types.
const (
	SinkLog   = "log"
	SinkRedis = "redis"
)

// SinkConfig selects the consumer of each window.
type SinkConfig struct {
	Type   string `yaml:"type"` // log, redis
	Stream string `yaml:"stream"`
	MaxLen int64  `yaml:"max_len"`
	// Addresses restricts delivery to logs touching these addresses. Empty
	// delivers everything.
	Addresses []string `yaml:"addresses"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Stdout      bool   `yaml:"stdout"`
	ServiceName string `yaml:"service_name"`
}
