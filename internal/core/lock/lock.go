// Package lock provides the non-blocking guard that keeps a single log
// processing cycle running at a time.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLeaseLost is the cancel cause of a lease context whose hold lapsed
// before it was released.
var ErrLeaseLost = errors.New("lock lease lost")

// Locker is a keyed try-lock. TryLock never waits: if key is held it returns
// acquired=false immediately. The returned unlock func is non-nil only when
// acquired is true and is safe to call more than once.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), acquired bool, err error)
}

// LeaseLocker is a Locker whose hold can lapse while held, such as a lease
// in a shared store. The lease context is cancelled with cause ErrLeaseLost
// when the hold lapses, and with context.Canceled on unlock.
type LeaseLocker interface {
	Locker
	TryLease(ctx context.Context, key string) (lease context.Context, unlock func(), acquired bool, err error)
}

// MemoryLocker guards keys within one process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

func (l *MemoryLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}

// Held reports whether key is currently locked.
func (l *MemoryLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}
