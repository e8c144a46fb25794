// Package lock provides entity-level locking so that every mutation on a given
// claim, account, nation or war record is serialized.
package lock

import (
	"context"
	"slices"
	"sync"
)

// entityMutex wraps a mutex with reference counting for cleanup.
type entityMutex struct {
	mu       sync.Mutex
	refCount int
}

// EntityLock provides per-key locking. Keys are opaque strings; callers
// namespace them (see Key).
type EntityLock struct {
	locks sync.Map // map[string]*entityMutex
	pool  sync.Pool
}

// NewEntityLock creates a new EntityLock instance.
func NewEntityLock() *EntityLock {
	return &EntityLock{
		pool: sync.Pool{
			New: func() any {
				return &entityMutex{}
			},
		},
	}
}

// Key builds a namespaced lock key, e.g. Key("account", id).
func Key(kind, id string) string {
	return kind + ":" + id
}

// PairKey builds a key for an unordered pair of ids. PairKey(k, a, b) == PairKey(k, b, a).
func PairKey(kind, a, b string) string {
	if b < a {
		a, b = b, a
	}
	return kind + ":" + a + "|" + b
}

func (l *EntityLock) getLock(key string) *entityMutex {
	if v, ok := l.locks.Load(key); ok {
		return v.(*entityMutex)
	}

	newLock := l.pool.Get().(*entityMutex)
	newLock.refCount = 0

	// Another goroutine may have stored one first.
	actual, loaded := l.locks.LoadOrStore(key, newLock)
	if loaded {
		l.pool.Put(newLock)
	}
	return actual.(*entityMutex)
}

// Lock acquires the lock for a key.
func (l *EntityLock) Lock(key string) {
	m := l.getLock(key)
	m.mu.Lock()
	m.refCount++
}

// Unlock releases the lock for a key.
func (l *EntityLock) Unlock(key string) {
	if v, ok := l.locks.Load(key); ok {
		m := v.(*entityMutex)
		m.refCount--
		m.mu.Unlock()
	}
}

// LockContext acquires the lock for a key, giving up when ctx is done.
func (l *EntityLock) LockContext(ctx context.Context, key string) error {
	m := l.getLock(key)
	if m.mu.TryLock() {
		m.refCount++
		return nil
	}

	done := make(chan struct{})
	go func() {
		m.mu.Lock()
		close(done)
	}()

	select {
	case <-done:
		m.refCount++
		return nil
	case <-ctx.Done():
		// The waiter still acquires eventually; release it on its behalf.
		go func() {
			<-done
			m.mu.Unlock()
		}()
		return ctx.Err()
	}
}

// WithLock executes fn while holding the lock for key.
func (l *EntityLock) WithLock(ctx context.Context, key string, fn func() error) error {
	if err := l.LockContext(ctx, key); err != nil {
		return err
	}
	defer l.Unlock(key)
	return fn()
}

// WithLocks executes fn while holding the locks for all keys. Keys are
// deduplicated and acquired in sorted order so that overlapping callers
// cannot deadlock. If ctx ends while waiting, the keys already held are
// released and fn does not run.
func (l *EntityLock) WithLocks(ctx context.Context, keys []string, fn func() error) error {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := 0
	defer func() {
		for i := held - 1; i >= 0; i-- {
			l.Unlock(sorted[i])
		}
	}()
	for _, k := range sorted {
		if err := l.LockContext(ctx, k); err != nil {
			return err
		}
		held++
	}
	return fn()
}
