package processor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/logwatcher/internal/core/cursor"
	"github.com/vietddude/logwatcher/internal/core/domain"
	"github.com/vietddude/logwatcher/internal/core/lock"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.now, 0)
}

func (c *fakeClock) Set(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ts
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []domain.Window
	logs    []domain.TransactionLog
	err     error
	started chan struct{} // signalled when Search is entered, if set
	release chan struct{} // Search blocks until closed, if set
	onCall  func(ctx context.Context, start, end int64)
}

func (f *fakeFetcher) Search(ctx context.Context, start, end int64) ([]domain.TransactionLog, error) {
	f.mu.Lock()
	f.calls = append(f.calls, domain.Window{Start: start, End: end})
	onCall := f.onCall
	f.mu.Unlock()

	if onCall != nil {
		onCall(ctx, start, end)
	}
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.logs, f.err
}

func (f *fakeFetcher) Calls() []domain.Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Window(nil), f.calls...)
}

type delivery struct {
	logs  []domain.TransactionLog
	start int64
	end   int64
}

type recorder struct {
	mu         sync.Mutex
	deliveries []delivery
	messages   map[LogTopic][]string
	err        error
}

func newRecorder() *recorder {
	return &recorder{messages: make(map[LogTopic][]string)}
}

func (r *recorder) OnLogsReceived(ctx context.Context, logs []domain.TransactionLog, start, end int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, delivery{logs: logs, start: start, end: end})
	return r.err
}

func (r *recorder) OnMessageLogged(topic LogTopic, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[topic] = append(r.messages[topic], message)
}

func (r *recorder) Deliveries() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.deliveries...)
}

func (r *recorder) Messages(topic LogTopic) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages[topic]...)
}

type failingStore struct {
	getErr error
	setErr error
	pos    cursor.Position
}

func (s *failingStore) Get(ctx context.Context) (cursor.Position, error) {
	if s.getErr != nil {
		return cursor.None(), s.getErr
	}
	return s.pos, nil
}

func (s *failingStore) Set(ctx context.Context, ts int64) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.pos = cursor.At(ts)
	return nil
}

// ctxStore refuses to read or write under a finished context, as the
// Redis and Postgres stores do.
type ctxStore struct {
	cursor.MemoryStore
}

func (s *ctxStore) Get(ctx context.Context) (cursor.Position, error) {
	if err := ctx.Err(); err != nil {
		return cursor.None(), err
	}
	return s.MemoryStore.Get(ctx)
}

func (s *ctxStore) Set(ctx context.Context, ts int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Set(ctx, ts)
}

// fakeLeaseLocker hands out leases the test can revoke.
type fakeLeaseLocker struct {
	mu       sync.Mutex
	held     bool
	revoke   context.CancelCauseFunc
	released int
}

func (l *fakeLeaseLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	_, unlock, ok, err := l.TryLease(ctx, key)
	return unlock, ok, err
}

func (l *fakeLeaseLocker) TryLease(ctx context.Context, key string) (context.Context, func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, nil, false, nil
	}
	l.held = true
	lease, cancel := context.WithCancelCause(context.Background())
	l.revoke = cancel
	return lease, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held = false
		l.released++
		cancel(context.Canceled)
	}, true, nil
}

func (l *fakeLeaseLocker) Revoke() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revoke(lock.ErrLeaseLost)
}

type harness struct {
	proc    *Processor
	clock   *fakeClock
	store   *cursor.MemoryStore
	fetcher *fakeFetcher
	rec     *recorder
}

func newHarness(t *testing.T, maxLookBehind int64, extra ...Option) *harness {
	t.Helper()

	h := &harness{
		clock:   &fakeClock{now: 1000},
		store:   cursor.NewMemoryStore(),
		fetcher: &fakeFetcher{},
		rec:     newRecorder(),
	}

	opts := Options{
		ElasticURL:             "http://elastic.invalid",
		MaxLookBehindInSeconds: maxLookBehind,
		OnLogsReceived:         h.rec.OnLogsReceived,
		OnMessageLogged:        h.rec.OnMessageLogged,
	}

	options := append([]Option{
		WithStore(h.store),
		WithFetcher(h.fetcher),
		WithClock(h.clock.Now),
	}, extra...)

	proc, err := New(opts, options...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.proc = proc
	return h
}

func (h *harness) cursorValue(t *testing.T) int64 {
	t.Helper()
	pos, _ := h.store.Get(context.Background())
	ts, ok := pos.Value()
	if !ok {
		t.Fatal("expected cursor to be set")
	}
	return ts
}

// =============================================================================
// Options Tests
// =============================================================================

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want error
	}{
		{"valid", Options{ElasticURL: "http://x"}, nil},
		{"valid with cap", Options{ElasticURL: "http://x", MaxLookBehindInSeconds: 100}, nil},
		{"missing url", Options{}, ErrMissingElasticURL},
		{"negative cap", Options{ElasticURL: "http://x", MaxLookBehindInSeconds: -1}, ErrInvalidLookBehind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.opts.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	proc, err := New(Options{ElasticURL: "http://localhost:9200"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if proc.opts.LockKey != DefaultLockKey {
		t.Errorf("expected default lock key, got %q", proc.opts.LockKey)
	}
	if proc.store == nil || proc.locker == nil || proc.fetcher == nil {
		t.Error("expected default collaborators to be set")
	}

	if _, err := New(Options{}); !errors.Is(err, ErrMissingElasticURL) {
		t.Errorf("expected ErrMissingElasticURL, got %v", err)
	}
}

// =============================================================================
// Cycle Tests
// =============================================================================

func TestRun_FirstCycleEstablishesBaseline(t *testing.T) {
	h := newHarness(t, 0)
	h.clock.Set(5000)

	h.fetcher.onCall = func(ctx context.Context, start, end int64) {
		// Baseline must be persisted before the fetch happens
		pos, _ := h.store.Get(ctx)
		if ts, ok := pos.Value(); !ok || ts != 5000 {
			t.Errorf("expected cursor 5000 before fetch, got %s", pos)
		}
	}

	res, err := h.proc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := domain.Window{Start: 5000, End: 5000}
	if res.Window != want {
		t.Errorf("expected window %s, got %s", want, res.Window)
	}
	if calls := h.fetcher.Calls(); len(calls) != 1 || calls[0] != want {
		t.Errorf("unexpected fetch calls %v", calls)
	}
	if got := h.cursorValue(t); got != 5000 {
		t.Errorf("expected cursor 5000, got %d", got)
	}
}

func TestRun_CursorContinuity(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	times := []int64{1000, 1006, 1012, 1020, 1500}
	var windows []domain.Window
	for _, now := range times {
		h.clock.Set(now)
		res, err := h.proc.Run(ctx)
		if err != nil {
			t.Fatalf("Run at %d failed: %v", now, err)
		}
		windows = append(windows, res.Window)
	}

	for i := 1; i < len(windows); i++ {
		if windows[i].Start != windows[i-1].End {
			t.Errorf("cycle %d starts at %d, previous ended at %d", i, windows[i].Start, windows[i-1].End)
		}
		if windows[i].End != times[i] {
			t.Errorf("cycle %d expected end %d, got %d", i, times[i], windows[i].End)
		}
	}

	deliveries := h.rec.Deliveries()
	if len(deliveries) != len(times) {
		t.Fatalf("expected %d deliveries, got %d", len(times), len(deliveries))
	}
	if d := deliveries[4]; d.start != 1020 || d.end != 1500 {
		t.Errorf("unexpected last delivery window (%d, %d)", d.start, d.end)
	}
}

func TestRun_LookBehindCap(t *testing.T) {
	tests := []struct {
		name        string
		maxLook     int64
		cursor      int64
		now         int64
		wantStart   int64
		wantClamped bool
	}{
		{"clamped", 50, 1000, 2000, 1950, true},
		{"exactly at cap", 100, 1900, 2000, 1900, false},
		{"within cap", 100, 1950, 2000, 1950, false},
		{"no cap", 0, 1000, 2000, 1000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.maxLook)
			_ = h.store.Set(context.Background(), tt.cursor)
			h.clock.Set(tt.now)

			res, err := h.proc.Run(context.Background())
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			if res.Window.Start != tt.wantStart || res.Window.End != tt.now {
				t.Errorf("expected window [%d, %d], got %s", tt.wantStart, tt.now, res.Window)
			}
			if res.Clamped != tt.wantClamped {
				t.Errorf("expected clamped=%v, got %v", tt.wantClamped, res.Clamped)
			}
			if tt.now-res.Window.Start > tt.maxLook && tt.maxLook > 0 {
				t.Errorf("window start %d is older than the cap", res.Window.Start)
			}

			d := h.rec.Deliveries()
			if len(d) != 1 || d[0].start != tt.wantStart || d[0].end != tt.now {
				t.Errorf("unexpected deliveries %+v", d)
			}
		})
	}
}

func TestRun_BackendFailureAdvancesCursor(t *testing.T) {
	h := newHarness(t, 0)
	_ = h.store.Set(context.Background(), 1000)
	h.clock.Set(1100)
	h.fetcher.err = errors.New("dial tcp 127.0.0.1:9200: connect: connection refused")

	res, err := h.proc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Records != 0 {
		t.Errorf("expected 0 records, got %d", res.Records)
	}

	d := h.rec.Deliveries()
	if len(d) != 1 {
		t.Fatalf("expected consumer to be invoked once, got %d", len(d))
	}
	if d[0].logs == nil || len(d[0].logs) != 0 {
		t.Errorf("expected empty non-nil logs, got %v", d[0].logs)
	}
	if d[0].start != 1000 || d[0].end != 1100 {
		t.Errorf("expected window (1000, 1100), got (%d, %d)", d[0].start, d[0].end)
	}

	if got := h.cursorValue(t); got != 1100 {
		t.Errorf("expected cursor 1100, got %d", got)
	}

	errs := h.rec.Messages(TopicError)
	if len(errs) != 1 || !strings.Contains(errs[0], "connection refused") {
		t.Errorf("expected error diagnostic, got %v", errs)
	}
}

func TestRun_DeliversFetchedLogs(t *testing.T) {
	h := newHarness(t, 0)
	_ = h.store.Set(context.Background(), 990)
	h.fetcher.logs = []domain.TransactionLog{
		{Address: "erd1a", Timestamp: 995},
		{Address: "erd1b", Timestamp: 999, Events: []domain.Event{{Identifier: "ESDTTransfer", Order: 0}}},
	}

	res, err := h.proc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Records != 2 {
		t.Errorf("expected 2 records, got %d", res.Records)
	}

	d := h.rec.Deliveries()
	if len(d) != 1 || len(d[0].logs) != 2 || d[0].logs[1].Address != "erd1b" {
		t.Errorf("unexpected delivery %+v", d)
	}
}

func TestRun_SkipsWhenAlreadyRunning(t *testing.T) {
	h := newHarness(t, 0)
	_ = h.store.Set(context.Background(), 900)
	h.fetcher.started = make(chan struct{}, 1)
	h.fetcher.release = make(chan struct{})

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.proc.Run(context.Background())
		done <- outcome{res, err}
	}()

	select {
	case <-h.fetcher.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never reached fetch")
	}

	h.clock.Set(1010)
	res, err := h.proc.Run(context.Background())
	if err != nil {
		t.Fatalf("overlapping Run failed: %v", err)
	}
	if !res.Skipped {
		t.Fatal("expected overlapping Run to be skipped")
	}
	if (res.Window != domain.Window{}) || res.Records != 0 {
		t.Errorf("expected empty result for skipped run, got %+v", res)
	}
	if got := h.cursorValue(t); got != 900 {
		t.Errorf("skipped run mutated cursor to %d", got)
	}
	if calls := h.fetcher.Calls(); len(calls) != 1 {
		t.Errorf("expected a single fetch, got %d", len(calls))
	}
	if msgs := h.rec.Messages(TopicDebug); len(msgs) != 1 || msgs[0] != "Logs processor is already running" {
		t.Errorf("expected debug diagnostic, got %v", msgs)
	}

	close(h.fetcher.release)
	first := <-done
	if first.err != nil || first.res.Skipped {
		t.Fatalf("first cycle failed: %+v", first)
	}
	if first.res.Window.Start != 900 || first.res.Window.End != 1000 {
		t.Errorf("unexpected first window %s", first.res.Window)
	}
	if len(h.rec.Deliveries()) != 1 {
		t.Errorf("expected one delivery, got %d", len(h.rec.Deliveries()))
	}

	// Guard is free again
	h.fetcher.started = nil
	h.fetcher.release = nil
	res, err = h.proc.Run(context.Background())
	if err != nil || res.Skipped {
		t.Errorf("expected cycle after release to run, got %+v, %v", res, err)
	}
	if res.Window.Start != 1000 || res.Window.End != 1010 {
		t.Errorf("unexpected window after release %s", res.Window)
	}
}

func TestRun_ConcurrentInvocationsNeverOverlap(t *testing.T) {
	h := newHarness(t, 0)

	var mu sync.Mutex
	active, maxActive := 0, 0
	h.fetcher.onCall = func(ctx context.Context, start, end int64) {
		mu.Lock()
		active++
		maxActive = max(maxActive, active)
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.proc.Run(context.Background())
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("expected at most one concurrent fetch, got %d", maxActive)
	}
}

func TestRun_ConsumerErrorPropagatesAfterCommit(t *testing.T) {
	h := newHarness(t, 0)
	_ = h.store.Set(context.Background(), 1000)
	h.clock.Set(1100)
	consumerErr := errors.New("downstream unavailable")
	h.rec.err = consumerErr

	res, err := h.proc.Run(context.Background())
	if !errors.Is(err, ErrConsumerFailed) || !errors.Is(err, consumerErr) {
		t.Fatalf("expected wrapped consumer error, got %v", err)
	}
	if res.Window.End != 1100 {
		t.Errorf("expected result window to be reported, got %s", res.Window)
	}
	if got := h.cursorValue(t); got != 1100 {
		t.Errorf("expected cursor committed to 1100, got %d", got)
	}

	// Guard released, next window starts after the failed one
	h.rec.err = nil
	h.clock.Set(1106)
	res, err = h.proc.Run(context.Background())
	if err != nil || res.Skipped {
		t.Fatalf("expected next cycle to run, got %+v, %v", res, err)
	}
	if res.Window.Start != 1100 {
		t.Errorf("expected failed window not to be retried, got %s", res.Window)
	}
}

func TestRun_ConsumerPanicReleasesGuard(t *testing.T) {
	h := newHarness(t, 0)
	h.proc.opts.OnLogsReceived = func(ctx context.Context, logs []domain.TransactionLog, s, e int64) error {
		panic("consumer bug")
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_, _ = h.proc.Run(context.Background())
	}()

	h.proc.opts.OnLogsReceived = nil
	res, err := h.proc.Run(context.Background())
	if err != nil || res.Skipped {
		t.Errorf("expected guard to be released after panic, got %+v, %v", res, err)
	}
}

func TestRun_StoreFailures(t *testing.T) {
	storeErr := errors.New("store down")

	t.Run("get", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		rec := newRecorder()
		proc, _ := New(
			Options{ElasticURL: "http://x", OnLogsReceived: rec.OnLogsReceived},
			WithStore(&failingStore{getErr: storeErr}),
			WithFetcher(fetcher),
		)

		if _, err := proc.Run(context.Background()); !errors.Is(err, storeErr) {
			t.Fatalf("expected store error, got %v", err)
		}
		if len(fetcher.Calls()) != 0 || len(rec.Deliveries()) != 0 {
			t.Error("expected no fetch or delivery after get failure")
		}

		// Guard released
		if res, _ := proc.Run(context.Background()); res.Skipped {
			t.Error("expected guard to be released")
		}
	})

	t.Run("set", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		rec := newRecorder()
		proc, _ := New(
			Options{ElasticURL: "http://x", OnLogsReceived: rec.OnLogsReceived},
			WithStore(&failingStore{pos: cursor.At(10), setErr: storeErr}),
			WithFetcher(fetcher),
			WithClock(func() time.Time { return time.Unix(20, 0) }),
		)

		if _, err := proc.Run(context.Background()); !errors.Is(err, storeErr) {
			t.Fatalf("expected store error, got %v", err)
		}
		if len(fetcher.Calls()) != 1 {
			t.Errorf("expected fetch before commit, got %d calls", len(fetcher.Calls()))
		}
		if len(rec.Deliveries()) != 0 {
			t.Error("expected no delivery when commit fails")
		}
	})
}

func TestRun_CursorAheadOfClock(t *testing.T) {
	h := newHarness(t, 0)
	_ = h.store.Set(context.Background(), 5000)
	h.clock.Set(4000)

	res, err := h.proc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Window.Start != 4000 || res.Window.End != 4000 {
		t.Errorf("expected zero-width window at now, got %s", res.Window)
	}
}

func TestRun_CallbacksBackTheCursor(t *testing.T) {
	var stored *int64
	fetcher := &fakeFetcher{}

	proc, err := New(
		Options{
			ElasticURL: "http://x",
			GetLastProcessedTimestamp: func(ctx context.Context) (cursor.Position, error) {
				if stored == nil {
					return cursor.None(), nil
				}
				return cursor.At(*stored), nil
			},
			SetLastProcessedTimestamp: func(ctx context.Context, ts int64) error {
				stored = &ts
				return nil
			},
		},
		WithFetcher(fetcher),
		WithClock(func() time.Time { return time.Unix(777, 0) }),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := proc.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stored == nil || *stored != 777 {
		t.Errorf("expected host callback to hold 777")
	}
}

func TestRun_CycleTimeoutExpiryStillCommitsAndDelivers(t *testing.T) {
	store := &ctxStore{}
	_ = store.MemoryStore.Set(context.Background(), 1000)

	rec := newRecorder()
	fetcher := &fakeFetcher{onCall: func(ctx context.Context, start, end int64) {
		<-ctx.Done()
	}}
	fetcher.err = context.DeadlineExceeded

	proc, err := New(
		Options{
			ElasticURL:      "http://x",
			OnLogsReceived:  rec.OnLogsReceived,
			OnMessageLogged: rec.OnMessageLogged,
		},
		WithStore(store),
		WithFetcher(fetcher),
		WithClock(func() time.Time { return time.Unix(1100, 0) }),
		WithCycleTimeout(20*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := proc.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	pos, _ := store.MemoryStore.Get(context.Background())
	if ts, _ := pos.Value(); ts != 1100 {
		t.Errorf("expected cursor 1100, got %s", pos)
	}

	deliveries := rec.Deliveries()
	if len(deliveries) != 1 {
		t.Fatalf("expected one delivery, got %d", len(deliveries))
	}
	d := deliveries[0]
	if d.logs == nil || len(d.logs) != 0 || d.start != 1000 || d.end != 1100 {
		t.Errorf("expected ([], 1000, 1100), got (%v, %d, %d)", d.logs, d.start, d.end)
	}
	if len(rec.Messages(TopicError)) != 1 {
		t.Errorf("expected one Error diagnostic, got %v", rec.Messages(TopicError))
	}
}

func TestRun_LostLeaseSkipsCommit(t *testing.T) {
	locker := &fakeLeaseLocker{}
	h := newHarness(t, 0, WithLocker(locker))
	_ = h.store.Set(context.Background(), 1000)
	h.clock.Set(1100)

	h.fetcher.onCall = func(ctx context.Context, start, end int64) {
		locker.Revoke()
	}

	res, err := h.proc.Run(context.Background())
	if !errors.Is(err, lock.ErrLeaseLost) {
		t.Fatalf("expected ErrLeaseLost, got %v", err)
	}
	if res.Window != (domain.Window{Start: 1000, End: 1100}) {
		t.Errorf("unexpected window %s", res.Window)
	}
	if got := h.cursorValue(t); got != 1000 {
		t.Errorf("expected cursor to stay at 1000, got %d", got)
	}
	if len(h.rec.Deliveries()) != 0 {
		t.Error("expected no delivery after losing the lease")
	}
	if locker.released != 1 {
		t.Errorf("expected lease to be released once, got %d", locker.released)
	}

	// A fresh lease runs normally
	h.fetcher.onCall = nil
	if _, err := h.proc.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := h.cursorValue(t); got != 1100 {
		t.Errorf("expected cursor 1100, got %d", got)
	}
}

func TestRun_CycleTimeout(t *testing.T) {
	h := newHarness(t, 0, WithCycleTimeout(50*time.Millisecond))

	var hadDeadline bool
	h.fetcher.onCall = func(ctx context.Context, start, end int64) {
		_, hadDeadline = ctx.Deadline()
	}

	if _, err := h.proc.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !hadDeadline {
		t.Error("expected fetch context to carry a deadline")
	}
}
