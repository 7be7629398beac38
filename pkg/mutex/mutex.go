package mutex

import (
	"context"
	"sync"
)

// Keyed serialises work per key, for example balance lookups for one wallet.
// Entries are reference counted and removed as soon as nobody holds or waits on them.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	// buffered channel of size one used as a lock that can be abandoned on context cancel
	sem  chan struct{}
	refs int
}

// New creates an empty Keyed mutex
func New() *Keyed {
	return &Keyed{entries: make(map[string]*keyedEntry)}
}

// Lock blocks until the key is free or ctx is done. On success the returned
// function releases the key and must be called exactly once.
func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	e := k.acquireRef(key)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.releaseRef(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			k.releaseRef(key, e)
		})
	}, nil
}

// TryLock acquires the key only if it is free right now
func (k *Keyed) TryLock(key string) (func(), bool) {
	e := k.acquireRef(key)

	select {
	case e.sem <- struct{}{}:
	default:
		k.releaseRef(key, e)
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			k.releaseRef(key, e)
		})
	}, true
}

// Size returns the number of keys currently held or waited on
func (k *Keyed) Size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *Keyed) acquireRef(key string) *keyedEntry {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) releaseRef(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}
