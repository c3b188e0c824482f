// Package locking provides per-key exclusive locks. The in-memory ticket
// store uses it to realize the row-scoped lock the transition coordinator
// requires; the postgres store relies on SELECT ... FOR UPDATE instead.
package locking

import (
	"context"
	"sync"
)

type entry struct {
	sem     chan struct{}
	waiters int
}

// KeyMutex serializes work per key. Locks on distinct keys never contend.
type KeyMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewKeyMutex creates an empty lock table.
func NewKeyMutex() *KeyMutex {
	return &KeyMutex{entries: make(map[string]*entry)}
}

// Lock acquires the exclusive lock for key, blocking until it is available or
// ctx is done. On success it returns a release function that must be called
// exactly once.
func (k *KeyMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.waiters++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return func() { k.release(key, e) }, nil
	case <-ctx.Done():
		k.mu.Lock()
		e.waiters--
		if e.waiters == 0 && len(e.sem) == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (k *KeyMutex) release(key string, e *entry) {
	<-e.sem
	k.mu.Lock()
	e.waiters--
	if e.waiters == 0 && len(e.sem) == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}
