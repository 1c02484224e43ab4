package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/logwatcher/internal/core/config"
	"github.com/vietddude/logwatcher/internal/core/cursor"
	"github.com/vietddude/logwatcher/internal/core/lock"
	"github.com/vietddude/logwatcher/internal/indexing/emitter"
	"github.com/vietddude/logwatcher/internal/indexing/filter"
	"github.com/vietddude/logwatcher/internal/indexing/processor"
	redisclient "github.com/vietddude/logwatcher/internal/infra/redis"
	"github.com/vietddude/logwatcher/internal/infra/storage/postgres"
)

// Backends holds the connections opened for the configured backends.
type Backends struct {
	DB    *postgres.DB
	Redis *redisclient.Client
}

// OpenBackends connects to Postgres and Redis when the config needs them.
func OpenBackends(ctx context.Context, cfg *config.AppConfig) (*Backends, error) {
	b := &Backends{}

	if cfg.Cursor.Backend == config.BackendPostgres {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		b.DB = db
		slog.Info("Using PostgreSQL cursor storage", "driver", cfg.Database.Driver)
	}

	if cfg.UsesRedis() {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		b.Redis = client
	}

	return b, nil
}

// Close releases every open connection.
func (b *Backends) Close() {
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			slog.Warn("Failed to close Redis", "error", err)
		}
	}
	if b.DB != nil {
		if err := b.DB.Close(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	}
}

// CursorStore returns the store selected by cfg.Cursor.Backend.
func (b *Backends) CursorStore(cfg *config.AppConfig) cursor.Store {
	switch cfg.Cursor.Backend {
	case config.BackendRedis:
		return redisclient.NewCursorStore(b.Redis, cfg.Cursor.Key)
	case config.BackendPostgres:
		return postgres.NewCursorRepo(b.DB, cfg.Cursor.Key)
	default:
		return cursor.NewMemoryStore()
	}
}

// Locker returns the guard selected by cfg.Lock.Backend.
func (b *Backends) Locker(cfg *config.AppConfig) lock.Locker {
	if cfg.Lock.Backend == config.BackendRedis {
		return redisclient.NewLocker(b.Redis, cfg.Lock.TTL)
	}
	return lock.NewMemoryLocker()
}

// Emitter returns the consumer selected by cfg.Sink.Type.
func (b *Backends) Emitter(cfg *config.AppConfig) emitter.Emitter {
	var sink emitter.Emitter = emitter.NewLogEmitter(slog.Default())
	if cfg.Sink.Type == config.SinkRedis {
		sink = emitter.Multi{sink, redisclient.NewStreamSink(b.Redis, cfg.Sink.Stream, cfg.Sink.MaxLen)}
	}
	if len(cfg.Sink.Addresses) > 0 {
		sink = emitter.Filtered{Inner: sink, Filter: filter.NewAddressFilter(cfg.Sink.Addresses...)}
	}
	return sink
}

// SlogMessageLogger forwards processor diagnostics to logger.
func SlogMessageLogger(logger *slog.Logger) processor.MessageLoggedFunc {
	return func(topic processor.LogTopic, message string) {
		switch topic {
		case processor.TopicError:
			logger.Error(message, "topic", string(topic))
		default:
			logger.Debug(message, "topic", string(topic))
		}
	}
}
