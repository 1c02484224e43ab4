package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/logwatcher/internal/infra/elastic"
)

var (
	ErrUnknownCursorBackend = errors.New("unknown cursor backend")
	ErrUnknownLockBackend   = errors.New("unknown lock backend")
	ErrUnknownSink          = errors.New("unknown sink type")
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding environment variables first, and
// applies defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	p := &c.Processor
	if p.ScanInterval == 0 {
		p.ScanInterval = 6 * time.Second
	}
	if p.LockKey == "" {
		p.LockKey = "newLogs"
	}
	if p.HTTPTimeout == 0 {
		p.HTTPTimeout = elastic.DefaultTimeout
	}

	if c.Cursor.Backend == "" {
		c.Cursor.Backend = BackendMemory
	}
	if c.Cursor.Key == "" {
		c.Cursor.Key = "logs"
	}
	if c.Lock.Backend == "" {
		c.Lock.Backend = BackendMemory
	}
	if c.Lock.TTL == 0 {
		c.Lock.TTL = 30 * time.Second
	}
	if c.Sink.Type == "" {
		c.Sink.Type = SinkLog
	}
	if c.Sink.Stream == "" {
		c.Sink.Stream = "logs"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "logwatcher"
	}
}

// Validate checks backend selections and the settings they depend on.
func (c *AppConfig) Validate() error {
	switch c.Cursor.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("cursor backend redis: redis.url is required")
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("cursor backend postgres: database.url is required")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCursorBackend, c.Cursor.Backend)
	}

	switch c.Lock.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("lock backend redis: redis.url is required")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLockBackend, c.Lock.Backend)
	}

	switch c.Sink.Type {
	case SinkLog:
	case SinkRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("sink redis: redis.url is required")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSink, c.Sink.Type)
	}

	if c.Processor.MaxLookBehindSeconds < 0 {
		return fmt.Errorf("processor.max_look_behind_seconds must be >= 0, got %d", c.Processor.MaxLookBehindSeconds)
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *AppConfig) UsesRedis() bool {
	return c.Cursor.Backend == BackendRedis || c.Lock.Backend == BackendRedis || c.Sink.Type == SinkRedis
}
