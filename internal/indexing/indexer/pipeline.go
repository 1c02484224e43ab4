package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Pipeline implements the Indexer interface.
// Every tick starts a cycle in its own goroutine, so a slow cycle overlaps the
// next tick; the processor guard turns the overlap into a skip.
type Pipeline struct {
	cfg      Config
	cycle    Cycle
	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	inflight sync.WaitGroup
	log      *slog.Logger

	mu      sync.RWMutex
	status  Status
	stopped bool // no new cycles once set
}

// NewPipeline creates a new scheduling pipeline
func NewPipeline(cfg Config, cycle Cycle) *Pipeline {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 6 * time.Second
	}
	return &Pipeline{
		cfg:    cfg,
		cycle:  cycle,
		stop:   make(chan struct{}),
		log:    slog.Default().With("pipeline", cfg.Name),
		status: Status{Name: cfg.Name},
	}
}

// Start begins the scheduling loop. It blocks until ctx is done or Stop is called.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already running")
	}
	defer p.running.Store(false)

	ticker := time.NewTicker(p.cfg.ScanInterval)
	defer ticker.Stop()

	if p.cfg.RunOnStart {
		p.fire(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.stop:
			return nil
		case <-ticker.C:
			p.fire(ctx)
		}
	}
}

// Stop stops the pipeline and waits for in-flight cycles or ctx expiry.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.stop)
	})

	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight cycles: %w", ctx.Err())
	}
}

// GetStatus returns the current status
func (p *Pipeline) GetStatus() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.status
	s.Running = p.running.Load()
	return s
}

func (p *Pipeline) fire(ctx context.Context) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.inflight.Add(1)
	p.status.Ticks++
	p.status.InFlight++
	p.mu.Unlock()

	// Cancelling the schedule stops new ticks only. A running cycle has
	// already committed its cursor and must finish delivery; Stop bounds it.
	cycleCtx := context.WithoutCancel(ctx)
	go func() {
		defer p.inflight.Done()
		p.runCycle(cycleCtx)
	}()
}

func (p *Pipeline) runCycle(ctx context.Context) {
	res, err := p.cycle.Run(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.InFlight--

	if err != nil {
		p.status.Failures++
		p.status.LastError = err.Error()
		p.status.LastRunAt = time.Now()
		p.status.LastWindow = res.Window
		p.log.Error("Cycle failed", "error", err, "window", res.Window.String())
		return
	}

	if res.Skipped {
		p.status.Skipped++
		p.log.Debug("Cycle skipped, previous cycle still running")
		return
	}

	p.status.LastError = ""
	p.status.LastRunAt = time.Now()
	p.status.LastWindow = res.Window
	p.log.Debug("Cycle completed",
		"start", res.Window.Start,
		"end", res.Window.End,
		"logs", res.Records,
		"clamped", res.Clamped,
	)
}
