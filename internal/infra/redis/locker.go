package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/logwatcher/internal/core/lock"
)

// Compare-and-delete / compare-and-expire on the owner token, so a holder
// never releases or extends a lease another process has since acquired.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Locker implements lock.LeaseLocker with a Redis lease (SET NX PX).
// The lease is refreshed every ttl/3 while held. If a refresh finds another
// owner, or no refresh has succeeded for a full ttl, the lease context is
// cancelled with lock.ErrLeaseLost and the processor skips its commit.
// Work done before that point may still overlap a new holder, so ttl must
// exceed the worst-case gap between refreshes, not the cycle length.
type Locker struct {
	client *Client
	ttl    time.Duration
}

var _ lock.LeaseLocker = (*Locker)(nil)

// NewLocker creates a lease locker. ttl defaults to 30s.
func NewLocker(client *Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{client: client, ttl: ttl}
}

// TryLock attempts to acquire the lease for name without waiting.
func (l *Locker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	_, unlock, acquired, err := l.TryLease(ctx, name)
	return unlock, acquired, err
}

// TryLease is TryLock plus a context that reports a lapsed lease.
func (l *Locker) TryLease(ctx context.Context, name string) (context.Context, func(), bool, error) {
	key := l.client.lockKey(name)
	token := uuid.NewString()

	ok, err := l.client.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, nil, false, fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		return nil, nil, false, nil
	}

	lease, cancelLease := context.WithCancelCause(context.Background())
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, token, cancelLease, stop, done)

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			close(stop)
			<-done
			cancelLease(context.Canceled)

			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client.rdb, []string{key}, token).Err(); err != nil {
				slog.Warn("Failed to release lock", "key", key, "error", err)
			}
		})
	}

	return lease, unlock, true, nil
}

func (l *Locker) keepAlive(
	key, token string,
	lost context.CancelCauseFunc,
	stop <-chan struct{},
	done chan<- struct{},
) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	lastRefresh := time.Now()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := refreshScript.Run(ctx, l.client.rdb, []string{key}, token, l.ttl.Milliseconds()).Int64()
			cancel()

			if err != nil {
				slog.Warn("Failed to refresh lock", "key", key, "error", err)
				if time.Since(lastRefresh) >= l.ttl {
					slog.Error("Lock lease expired without refresh", "key", key)
					lost(lock.ErrLeaseLost)
					return
				}
				continue
			}
			if n == 0 {
				slog.Error("Lock lease lost", "key", key)
				lost(lock.ErrLeaseLost)
				return
			}
			lastRefresh = time.Now()
		}
	}
}
