package services

import (
	"context"
	"sync"
)

// KeyLocker serializes work on a single conflict key. Two facts proposed
// concurrently on the same (tenant, subject, predicate) must each see the
// other or neither; calls on different keys proceed in parallel.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// localKeyLock is the single-process implementation. Deployments running
// more than one replica configure the Redis-backed lock instead.
type localKeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

// keyEntry is a one-slot semaphore with a holder/waiter count so idle
// entries can be reclaimed from the map.
type keyEntry struct {
	sem  chan struct{}
	refs int
}

func NewLocalKeyLock() KeyLocker {
	return &localKeyLock{locks: make(map[string]*keyEntry)}
}

func (l *localKeyLock) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &keyEntry{sem: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e, false)
		return nil, ctx.Err()
	}
	return func() { l.release(key, e, true) }, nil
}

func (l *localKeyLock) release(key string, e *keyEntry, held bool) {
	if held {
		<-e.sem
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
