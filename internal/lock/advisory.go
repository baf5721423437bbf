package lock

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// How often a blocked waiter retries pg_try_advisory_lock.
	pollInterval = 50 * time.Millisecond
	// Budget for the unlock round-trip during release.
	releaseTimeout = 5 * time.Second
)

// AdvisoryLocker implements Locker on top of Postgres session advisory
// locks. Every instance pointed at the same database contends on the same
// key hash, which makes the exclusion fleet-wide. The lock lives on a
// dedicated pooled connection: advisory locks are session-scoped, so the
// same session must perform the unlock.
type AdvisoryLocker struct {
	pool *pgxpool.Pool
}

func NewAdvisoryLocker(pool *pgxpool.Pool) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool}
}

func (l *AdvisoryLocker) Acquire(ctx context.Context, key string, timeout time.Duration) (Handle, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection failed: %w", err)
	}

	keyID := hashKey(key)
	deadline := time.Now().Add(timeout)

	for {
		var locked bool
		if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", keyID).Scan(&locked); err != nil {
			conn.Release()
			return nil, fmt.Errorf("try advisory lock failed: %w", err)
		}
		if locked {
			return &advisoryHandle{conn: conn, keyID: keyID}, nil
		}

		if time.Now().After(deadline) {
			conn.Release()
			return nil, ErrTimeout
		}

		select {
		case <-ctx.Done():
			conn.Release()
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

type advisoryHandle struct {
	conn  *pgxpool.Conn
	keyID int64
	once  sync.Once
}

// Release unlocks and returns the connection to the pool. If the unlock
// round-trip fails, the session is destroyed instead of being pooled:
// Postgres frees session advisory locks when the session ends, so the
// lock can never leak on a connection another request might reuse.
func (h *advisoryHandle) Release() {
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		if _, err := h.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", h.keyID); err != nil {
			h.conn.Hijack().Close(ctx)
			return
		}
		h.conn.Release()
	})
}

// hashKey maps a lock name to the bigint keyspace of pg_advisory_lock.
func hashKey(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}
