package indexer

import (
	"context"
	"time"

	"github.com/vietddude/logwatcher/internal/core/domain"
	"github.com/vietddude/logwatcher/internal/indexing/processor"
)

// Indexer drives the log processor on a schedule.
type Indexer interface {
	// Start runs the schedule until ctx is cancelled or Stop is called
	Start(ctx context.Context) error

	// Stop ends the schedule and waits for in-flight cycles
	Stop(ctx context.Context) error

	// GetStatus returns current scheduling status
	GetStatus() Status
}

// Cycle is one fetch-and-advance invocation.
type Cycle interface {
	Run(ctx context.Context) (processor.Result, error)
}

type Status struct {
	Name       string
	Running    bool
	Ticks      int64
	Skipped    int64
	Failures   int64
	InFlight   int64
	LastRunAt  time.Time
	LastWindow domain.Window
	LastError  string
}

// Config holds scheduling configuration
type Config struct {
	Name         string
	ScanInterval time.Duration // reference cadence is 6s
	RunOnStart   bool
}
