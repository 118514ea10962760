/*
Package lock provides per-key exclusive sections for the ledger engine.

PURPOSE:
  No two settlement runs for the same worker may interleave, or double
  allocation against the same remaining balance becomes possible. The
  engine takes a Locker and holds the worker's section for the whole
  mutation, including the persistence transaction.

IMPLEMENTATIONS:
  KeyedMutex: In-process, for a single-instance deployment (default)
  RedisLock:  Lease-based over Redis, for multiple instances (redis.go)
*/
package lock

import (
	"context"
	"sync"
)

// Locker grants an exclusive section for a key. Acquire blocks until the
// section is free or ctx is done; the returned release must always be
// called, usually via defer.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// =============================================================================
// KEYED MUTEX - In-process per-key lock
// =============================================================================

// KeyedMutex hands out one mutex per key. Entries are reference-counted
// and removed once the last holder releases, so the map does not grow
// with the number of workers ever seen.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

func (k *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return func() { k.release(key, e) }, nil
	case <-ctx.Done():
		k.unref(key, e)
		return nil, ctx.Err()
	}
}

func (k *KeyedMutex) release(key string, e *keyedEntry) {
	<-e.ch
	k.unref(key, e)
}

func (k *KeyedMutex) unref(key string, e *keyedEntry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}
