package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker implements Locker with in-process semaphores. It only
// serializes writers inside a single process, so it is suitable for tests
// and single-instance deployments; fleets use AdvisoryLocker.
type MemoryLocker struct {
	mu   sync.Mutex
	keys map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{keys: make(map[string]chan struct{})}
}

func (l *MemoryLocker) semaphore(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, ok := l.keys[key]
	if !ok {
		sem = make(chan struct{}, 1)
		l.keys[key] = sem
	}
	return sem
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, timeout time.Duration) (Handle, error) {
	sem := l.semaphore(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return &memoryHandle{sem: sem}, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type memoryHandle struct {
	sem  chan struct{}
	once sync.Once
}

func (h *memoryHandle) Release() {
	h.once.Do(func() {
		<-h.sem
	})
}
