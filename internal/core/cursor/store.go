package cursor

import (
	"context"
	"sync"
)

// Store persists the cursor between cycles.
type Store interface {
	// Get returns the last stored position, or None() if nothing was stored yet.
	Get(ctx context.Context) (Position, error)

	// Set replaces the stored value. Last write wins.
	Set(ctx context.Context, ts int64) error
}

// MemoryStore keeps the cursor in process memory. It starts empty.
type MemoryStore struct {
	mu  sync.RWMutex
	pos Position
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(ctx context.Context) (Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pos, nil
}

func (s *MemoryStore) Set(ctx context.Context, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = At(ts)
	return nil
}

// GetFunc reads a host-managed cursor. Returning None() means "never set".
type GetFunc func(ctx context.Context) (Position, error)

// SetFunc writes a host-managed cursor.
type SetFunc func(ctx context.Context, ts int64) error

// FuncStore adapts host callbacks to Store.
// A nil callback falls back to an in-memory value scoped to the store.
type FuncStore struct {
	get      GetFunc
	set      SetFunc
	fallback *MemoryStore
}

// NewFuncStore creates a store backed by the given callbacks.
func NewFuncStore(get GetFunc, set SetFunc) *FuncStore {
	return &FuncStore{
		get:      get,
		set:      set,
		fallback: NewMemoryStore(),
	}
}

func (s *FuncStore) Get(ctx context.Context) (Position, error) {
	if s.get == nil {
		return s.fallback.Get(ctx)
	}
	return s.get(ctx)
}

func (s *FuncStore) Set(ctx context.Context, ts int64) error {
	if s.set == nil {
		return s.fallback.Set(ctx, ts)
	}
	return s.set(ctx, ts)
}
