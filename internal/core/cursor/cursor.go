// Package cursor stores how far the log processor has read.
//
// # Purpose
//
// The cursor is a single unix timestamp (seconds) marking the end of the last
// window that was queried against the log backend. The next cycle starts its
// window from it.
//
// A store may hold no value at all (first run). That case is modelled
// explicitly with Position instead of a zero timestamp:
//
//	pos, err := store.Get(ctx)
//	if ts, ok := pos.Value(); ok {
//	    // resume from ts
//	}
//
// # Package Structure
//
//   - cursor.go  - Position sum type
//   - store.go   - Store interface, in-memory and callback-backed stores
//   - metrics.go - Tracker that records cursor advances for health/metrics
package cursor

import (
	"errors"
	"strconv"
)

// ErrCursorNotFound is returned by repositories that have no stored cursor.
// Stores translate it into None().
var ErrCursorNotFound = errors.New("cursor not found")

// Position is either a stored timestamp or absent.
type Position struct {
	ts  int64
	set bool
}

// At returns a present position holding ts.
func At(ts int64) Position {
	return Position{ts: ts, set: true}
}

// None returns the absent position.
func None() Position {
	return Position{}
}

// Value returns the timestamp and whether it is present.
func (p Position) Value() (int64, bool) {
	return p.ts, p.set
}

// IsSet reports whether the position holds a timestamp.
func (p Position) IsSet() bool {
	return p.set
}

func (p Position) String() string {
	if !p.set {
		return "none"
	}
	return strconv.FormatInt(p.ts, 10)
}
