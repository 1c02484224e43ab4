package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/logwatcher/internal/core/cursor"
	"github.com/vietddude/logwatcher/internal/indexing/indexer"
)

// CursorSource exposes progress data for one cursor.
type CursorSource interface {
	GetMetrics() cursor.Metrics
}

// StatusSource exposes the scheduler state of one pipeline.
type StatusSource interface {
	GetStatus() indexer.Status
}

// Target is one pipeline watched by the monitor.
type Target struct {
	Name         string
	ScanInterval time.Duration
	Cursor       CursorSource
	Pipeline     StatusSource
}

// PingFunc checks a backend connection.
type PingFunc func(ctx context.Context) error

// Monitor aggregates health status from the registered pipelines and
// backend connections.
type Monitor struct {
	targets       []Target
	deps          map[string]PingFunc
	checkInterval time.Duration
	now           func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport HealthReport
}

// NewMonitor creates a new health monitor.
func NewMonitor(targets ...Target) *Monitor {
	return &Monitor{
		targets:       targets,
		deps:          make(map[string]PingFunc),
		checkInterval: 2 * time.Second,
		now:           time.Now,
	}
}

// AddDependency registers a backend ping. A failing ping marks the system
// critical, since cycles cannot persist the cursor without it.
func (m *Monitor) AddDependency(name string, ping PingFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps[name] = ping
}

// CheckHealth evaluates every pipeline and dependency. Results are cached
// briefly so frequent probes do not hammer the backends.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lastReport.Pipelines != nil && now.Sub(m.lastCheck) < m.checkInterval {
		return m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Pipelines:    make(map[string]PipelineHealth, len(m.targets)),
	}
	for _, target := range m.targets {
		h := evaluate(target, now)
		report.Pipelines[target.Name] = h
		report.SystemStatus = worst(report.SystemStatus, h.Status)
	}

	if len(m.deps) > 0 {
		report.Dependencies = make(map[string]DependencyHealth, len(m.deps))
		for name, ping := range m.deps {
			d := DependencyHealth{Status: StatusHealthy}
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := ping(pingCtx); err != nil {
				d.Status = StatusCritical
				d.Error = err.Error()
			}
			cancel()
			report.Dependencies[name] = d
			report.SystemStatus = worst(report.SystemStatus, d.Status)
		}
	}

	m.lastCheck = now
	m.lastReport = report
	return report
}

// evaluate grades a pipeline by how many scan intervals its cursor trails
// the clock: over 3 is degraded, over 10 is critical. A failed last cycle
// or a stopped scheduler is at least degraded.
func evaluate(target Target, now time.Time) PipelineHealth {
	h := PipelineHealth{Name: target.Name, Status: StatusHealthy}

	if target.Cursor != nil {
		m := target.Cursor.GetMetrics()
		if ts, ok := m.Position.Value(); ok {
			h.Cursor = &ts
			h.CursorLag = m.Lag(now)
		}
	}

	if target.Pipeline != nil {
		st := target.Pipeline.GetStatus()
		h.Running = st.Running
		h.Ticks = st.Ticks
		h.Skipped = st.Skipped
		h.Failures = st.Failures
		h.LastError = st.LastError
		if !st.LastRunAt.IsZero() {
			lastRun := st.LastRunAt
			h.LastRunAt = &lastRun
			h.LastWindow = st.LastWindow.String()
		}

		if !st.Running || st.LastError != "" {
			h.Status = StatusDegraded
		}
	}

	interval := int64(target.ScanInterval / time.Second)
	if interval < 1 {
		interval = 1
	}
	switch {
	case h.CursorLag > 10*interval:
		h.Status = StatusCritical
	case h.CursorLag > 3*interval:
		h.Status = worst(h.Status, StatusDegraded)
	}

	return h
}
