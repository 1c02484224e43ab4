package cursor

import (
	"context"
	"sync"
	"time"
)

// advanceRecord holds timing data for one cursor write.
type advanceRecord struct {
	Timestamp int64
	WrittenAt time.Time
}

// Metrics holds cursor progress data.
type Metrics struct {
	Position        Position
	Advances        int
	LastAdvanceAt   *time.Time
	AverageInterval time.Duration // wall time between writes
	SecondsPerWrite float64       // cursor seconds covered per write
}

// Lag returns how many seconds the cursor trails now. Zero if unset.
func (m Metrics) Lag(now time.Time) int64 {
	ts, ok := m.Position.Value()
	if !ok {
		return 0
	}
	return max(now.Unix()-ts, 0)
}

// Tracker wraps a Store and records every successful write.
type Tracker struct {
	store      Store
	windowSize int

	mu       sync.RWMutex
	history  []advanceRecord // ring of recent writes
	advances int
	last     Position
	now      func() time.Time
}

// NewTracker creates a tracker over store keeping windowSize recent writes.
func NewTracker(store Store, windowSize int) *Tracker {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &Tracker{
		store:      store,
		windowSize: windowSize,
		history:    make([]advanceRecord, 0, windowSize),
		now:        time.Now,
	}
}

func (t *Tracker) Get(ctx context.Context) (Position, error) {
	pos, err := t.store.Get(ctx)
	if err != nil {
		return None(), err
	}

	t.mu.Lock()
	t.last = pos
	t.mu.Unlock()

	return pos, nil
}

func (t *Tracker) Set(ctx context.Context, ts int64) error {
	if err := t.store.Set(ctx, ts); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	record := advanceRecord{Timestamp: ts, WrittenAt: t.now()}
	if len(t.history) >= t.windowSize {
		// Shift elements left, drop oldest
		copy(t.history, t.history[1:])
		t.history[len(t.history)-1] = record
	} else {
		t.history = append(t.history, record)
	}
	t.advances++
	t.last = At(ts)

	return nil
}

// GetMetrics returns current metrics.
func (t *Tracker) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m := Metrics{
		Position: t.last,
		Advances: t.advances,
	}

	if len(t.history) > 0 {
		at := t.history[len(t.history)-1].WrittenAt
		m.LastAdvanceAt = &at
	}

	if len(t.history) >= 2 {
		first := t.history[0]
		last := t.history[len(t.history)-1]
		count := float64(len(t.history) - 1)

		if d := last.WrittenAt.Sub(first.WrittenAt); d > 0 {
			m.AverageInterval = time.Duration(float64(d) / count)
		}
		m.SecondsPerWrite = float64(last.Timestamp-first.Timestamp) / count
	}

	return m
}
