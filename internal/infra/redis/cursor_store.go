package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/logwatcher/internal/core/cursor"
)

// CursorStore implements cursor.Store on a single Redis string key.
type CursorStore struct {
	client *Client
	key    string
}

// NewCursorStore creates a store for the cursor called name.
func NewCursorStore(client *Client, name string) *CursorStore {
	return &CursorStore{
		client: client,
		key:    client.cursorKey(name),
	}
}

// Get returns None() when the key does not exist.
func (s *CursorStore) Get(ctx context.Context) (cursor.Position, error) {
	val, err := s.client.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return cursor.None(), nil
	}
	if err != nil {
		return cursor.None(), fmt.Errorf("get failed: %w", err)
	}

	ts, err := ParseTimestamp(val)
	if err != nil {
		return cursor.None(), err
	}
	return cursor.At(ts), nil
}

// Set stores ts without expiry.
func (s *CursorStore) Set(ctx context.Context, ts int64) error {
	if err := s.client.rdb.Set(ctx, s.key, strconv.FormatInt(ts, 10), 0).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// ParseTimestamp parses a stored cursor value.
func ParseTimestamp(s string) (int64, error) {
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor value %q: %w", s, err)
	}
	if ts < 0 {
		return 0, fmt.Errorf("invalid cursor value %q: negative", s)
	}
	return ts, nil
}
