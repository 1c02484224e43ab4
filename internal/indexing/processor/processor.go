// Package processor runs the fetch-and-advance cycle over the log backend.
//
// One call to Run:
//
//	guard -> read cursor -> clamp window -> fetch [start, now] -> write cursor = now -> deliver
//
// The cursor is written before the consumer runs, so delivery is at-most-once
// per window: a consumer error, or a crash between the write and delivery,
// loses that window. A failed backend query is logged and treated as an empty
// window, and the cursor still advances.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vietddude/logwatcher/internal/core/cursor"
	"github.com/vietddude/logwatcher/internal/core/domain"
	"github.com/vietddude/logwatcher/internal/core/lock"
	"github.com/vietddude/logwatcher/internal/indexing/metrics"
	"github.com/vietddude/logwatcher/internal/infra/elastic"
)

// ErrConsumerFailed wraps errors returned by OnLogsReceived.
var ErrConsumerFailed = errors.New("logs consumer failed")

// Fetcher queries the backend for logs in the inclusive range [start, end].
type Fetcher interface {
	Search(ctx context.Context, start, end int64) ([]domain.TransactionLog, error)
}

// Result describes one invocation of Run.
type Result struct {
	Skipped bool          // another cycle held the guard
	Window  domain.Window // queried range, zero when skipped
	Records int           // logs delivered to the consumer
	Clamped bool          // window start was raised by the look-behind cap
}

// Processor executes at most one cycle at a time.
type Processor struct {
	opts         Options
	store        cursor.Store
	locker       lock.Locker
	fetcher      Fetcher
	now          func() time.Time
	cycleTimeout time.Duration
	tracer       trace.Tracer
}

// Option customises a Processor.
type Option func(*Processor)

// WithStore replaces the cursor store built from the Options callbacks.
func WithStore(store cursor.Store) Option {
	return func(p *Processor) { p.store = store }
}

// WithLocker replaces the in-process guard, e.g. with a distributed lease.
func WithLocker(locker lock.Locker) Option {
	return func(p *Processor) { p.locker = locker }
}

// WithFetcher replaces the HTTP backend client.
func WithFetcher(fetcher Fetcher) Option {
	return func(p *Processor) { p.fetcher = fetcher }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithCycleTimeout bounds the backend query of each cycle. A query that runs
// past it counts as a backend failure. Zero means no bound.
func WithCycleTimeout(d time.Duration) Option {
	return func(p *Processor) { p.cycleTimeout = d }
}

// New creates a processor. Without options it keeps the cursor in memory
// (or in the Options callbacks), guards in-process and queries
// opts.ElasticURL over HTTP.
func New(opts Options, options ...Option) (*Processor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.LockKey == "" {
		opts.LockKey = DefaultLockKey
	}

	p := &Processor{
		opts:   opts,
		now:    time.Now,
		tracer: otel.Tracer("indexing/processor"),
	}
	for _, opt := range options {
		opt(p)
	}

	if p.store == nil {
		p.store = cursor.NewFuncStore(opts.GetLastProcessedTimestamp, opts.SetLastProcessedTimestamp)
	}
	if p.locker == nil {
		p.locker = lock.NewMemoryLocker()
	}
	if p.fetcher == nil {
		client, err := elastic.NewClient(opts.ElasticURL, elastic.DefaultTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create elastic client: %w", err)
		}
		p.fetcher = client
	}

	return p, nil
}

// Run executes one cycle, or returns Result{Skipped: true} immediately if a
// cycle is already in progress. The guard is released on every exit path.
func (p *Processor) Run(ctx context.Context) (Result, error) {
	lease, unlock, acquired, err := p.acquire(ctx)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues(metrics.OutcomeLockError).Inc()
		return Result{}, fmt.Errorf("failed to acquire lock %q: %w", p.opts.LockKey, err)
	}
	if !acquired {
		p.logMessage(TopicDebug, "Logs processor is already running")
		metrics.CyclesTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return Result{Skipped: true}, nil
	}
	defer unlock()

	return p.processLogs(ctx, lease)
}

// acquire takes the guard. For a lease locker the returned context reports
// a lapsed hold; otherwise it is never cancelled.
func (p *Processor) acquire(ctx context.Context) (context.Context, func(), bool, error) {
	if ll, ok := p.locker.(lock.LeaseLocker); ok {
		return ll.TryLease(ctx, p.opts.LockKey)
	}
	unlock, acquired, err := p.locker.TryLock(ctx, p.opts.LockKey)
	return context.Background(), unlock, acquired, err
}

func (p *Processor) processLogs(ctx context.Context, lease context.Context) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "Processor.Run")
	defer span.End()

	started := time.Now()
	defer func() {
		metrics.CycleDuration.Observe(time.Since(started).Seconds())
	}()

	lastProcessed, err := p.lastProcessedOrCurrent(ctx)
	if err != nil {
		span.RecordError(err)
		metrics.CyclesTotal.WithLabelValues(metrics.OutcomeStoreError).Inc()
		return Result{}, err
	}

	currentTimestamp := p.unixNow()

	// A cursor ahead of the clock would give an inverted window.
	if lastProcessed > currentTimestamp {
		p.logMessage(TopicDebug, fmt.Sprintf(
			"Last processed timestamp %d is ahead of current time %d", lastProcessed, currentTimestamp))
		lastProcessed = currentTimestamp
	}

	clamped := false
	maxLookBehind := p.opts.MaxLookBehindInSeconds
	if maxLookBehind > 0 && currentTimestamp-lastProcessed > maxLookBehind {
		lastProcessed = currentTimestamp - maxLookBehind
		clamped = true
		metrics.WindowsClamped.Inc()
	}

	window := domain.Window{Start: lastProcessed, End: currentTimestamp}
	span.SetAttributes(
		attribute.Int64("window.start", window.Start),
		attribute.Int64("window.end", window.End),
		attribute.Bool("window.clamped", clamped),
	)
	metrics.WindowWidth.Set(float64(window.Width()))

	logs := p.getLogs(ctx, window)

	// Another process may own the cursor once the lease has lapsed.
	if errors.Is(context.Cause(lease), lock.ErrLeaseLost) {
		span.RecordError(lock.ErrLeaseLost)
		metrics.CyclesTotal.WithLabelValues(metrics.OutcomeLockError).Inc()
		return Result{Window: window, Clamped: clamped}, fmt.Errorf("cursor not advanced: %w", lock.ErrLeaseLost)
	}

	if err := p.store.Set(ctx, currentTimestamp); err != nil {
		span.RecordError(err)
		metrics.CyclesTotal.WithLabelValues(metrics.OutcomeStoreError).Inc()
		return Result{}, fmt.Errorf("failed to set last processed timestamp: %w", err)
	}
	metrics.CursorTimestamp.Set(float64(currentTimestamp))

	result := Result{
		Window:  window,
		Records: len(logs),
		Clamped: clamped,
	}
	span.SetAttributes(attribute.Int("logs.count", len(logs)))

	if err := p.onLogsReceived(ctx, logs, window); err != nil {
		span.RecordError(err)
		metrics.CyclesTotal.WithLabelValues(metrics.OutcomeConsumerError).Inc()
		return result, fmt.Errorf("%w: %w", ErrConsumerFailed, err)
	}

	metrics.LogsDelivered.Add(float64(len(logs)))
	metrics.CyclesTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	return result, nil
}

// getLogs never fails: backend errors are reported and yield an empty window.
// The cycle timeout bounds only this query, so an expired deadline still
// leaves a live context for the commit and the consumer.
func (p *Processor) getLogs(ctx context.Context, window domain.Window) []domain.TransactionLog {
	if p.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cycleTimeout)
		defer cancel()
	}

	logs, err := p.fetcher.Search(ctx, window.Start, window.End)
	if err != nil {
		metrics.FetchErrorsTotal.Inc()
		trace.SpanFromContext(ctx).RecordError(err)
		p.logMessage(TopicError, err.Error())
		return []domain.TransactionLog{}
	}
	if logs == nil {
		return []domain.TransactionLog{}
	}
	return logs
}

func (p *Processor) onLogsReceived(ctx context.Context, logs []domain.TransactionLog, window domain.Window) error {
	if p.opts.OnLogsReceived == nil {
		return nil
	}
	return p.opts.OnLogsReceived(ctx, logs, window.Start, window.End)
}

// lastProcessedOrCurrent returns the stored cursor. On first run it stores
// and returns now, so history before startup is never replayed.
func (p *Processor) lastProcessedOrCurrent(ctx context.Context) (int64, error) {
	pos, err := p.store.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get last processed timestamp: %w", err)
	}
	if ts, ok := pos.Value(); ok {
		return ts, nil
	}

	ts := p.unixNow()
	if err := p.store.Set(ctx, ts); err != nil {
		return 0, fmt.Errorf("failed to set last processed timestamp: %w", err)
	}
	return ts, nil
}

func (p *Processor) logMessage(topic LogTopic, message string) {
	if p.opts.OnMessageLogged != nil {
		p.opts.OnMessageLogged(topic, message)
	}
}

func (p *Processor) unixNow() int64 {
	return p.now().Unix()
}
