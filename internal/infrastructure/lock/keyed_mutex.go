// Package lock provides port.QuotaLocker implementations.
package lock

import (
	"context"
	"sort"
	"sync"

	"github.com/garyjia/counsel-settlement/internal/application/port"
)

// KeyedMutex serializes holders of the same key inside one process.
// Entries are reference counted and removed once nobody holds or waits on them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	// ch has capacity 1; a value in it means the key is held
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyEntry)}
}

// Lock acquires every distinct key in sorted order. It gives up with the
// context's error, releasing anything already acquired.
func (k *KeyedMutex) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)

	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			k.unlock(held[i])
		}
	}

	for _, key := range keys {
		if err := k.lock(ctx, key); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// Len reports how many keys are currently tracked
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *KeyedMutex) lock(ctx context.Context, key string) error {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyEntry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.release(key, e)
		return ctx.Err()
	}
}

func (k *KeyedMutex) unlock(key string) {
	k.mu.Lock()
	e, ok := k.entries[key]
	k.mu.Unlock()
	if !ok {
		return
	}
	<-e.ch
	k.release(key, e)
}

func (k *KeyedMutex) release(key string, e *keyEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// normalizeKeys sorts and de-duplicates keys so every caller locks in the same order
func normalizeKeys(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, key := range out {
		if i > 0 && key == out[n-1] {
			continue
		}
		out[n] = key
		n++
	}
	return out[:n]
}

// Verify interface compliance
var _ port.QuotaLocker = (*KeyedMutex)(nil)
