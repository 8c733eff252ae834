package mounts

import (
	"context"
	"sync"
)

// keyedMutex serialises work per key. Distinct keys never contend.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

func (k *keyedMutex) acquireRef(key string) *keyLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *keyedMutex) releaseRef(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Lock blocks until key is free or ctx is done.
func (k *keyedMutex) Lock(ctx context.Context, key string) error {
	l := k.acquireRef(key)
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.releaseRef(key, l)
		return ctx.Err()
	}
}

// TryLock takes key only if nobody holds it.
func (k *keyedMutex) TryLock(key string) bool {
	l := k.acquireRef(key)
	select {
	case l.sem <- struct{}{}:
		return true
	default:
		k.releaseRef(key, l)
		return false
	}
}

// Unlock releases key. It panics if key is not held.
func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	k.mu.Unlock()
	if !ok {
		panic("mounts: unlock of unlocked key " + key)
	}
	select {
	case <-l.sem:
	default:
		panic("mounts: unlock of unlocked key " + key)
	}
	k.releaseRef(key, l)
}

// held reports the number of keys currently tracked. Used by tests.
func (k *keyedMutex) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
