// Package emitter delivers each processed window to its consumers.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/logwatcher/internal/core/domain"
	"github.com/vietddude/logwatcher/internal/indexing/filter"
)

// Emitter receives the logs of one window.
type Emitter interface {
	OnLogsReceived(ctx context.Context, logs []domain.TransactionLog, start, end int64) error
}

// LogEmitter reports each window through slog.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates an emitter writing to logger, or slog.Default when nil.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) OnLogsReceived(ctx context.Context, logs []domain.TransactionLog, start, end int64) error {
	e.logger.InfoContext(ctx, fmt.Sprintf("Received %d logs between %d and %d", len(logs), start, end),
		"count", len(logs),
		"start", start,
		"end", end,
	)
	for _, log := range logs {
		e.logger.DebugContext(ctx, "Transaction log",
			"address", log.Address,
			"timestamp", log.Timestamp,
			"events", len(log.Events),
		)
	}
	return nil
}

// Multi delivers every window to each emitter in order. All emitters are
// attempted; their errors are joined.
type Multi []Emitter

func (m Multi) OnLogsReceived(ctx context.Context, logs []domain.TransactionLog, start, end int64) error {
	var errs []error
	for _, e := range m {
		if err := e.OnLogsReceived(ctx, logs, start, end); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Filtered forwards only the logs kept by filter. Windows are always
// forwarded, even when nothing matches.
type Filtered struct {
	Inner  Emitter
	Filter *filter.AddressFilter
}

func (f Filtered) OnLogsReceived(ctx context.Context, logs []domain.TransactionLog, start, end int64) error {
	return f.Inner.OnLogsReceived(ctx, f.Filter.Apply(logs), start, end)
}
