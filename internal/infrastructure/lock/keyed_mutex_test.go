package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(ctx, "quota:c1:v1:2024-03")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Equal(t, 0, km.Len(), "entries are dropped once released")
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := km.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := km.Lock(ctx, "b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on an unrelated key blocked")
	}
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	km := NewKeyedMutex()

	unlock, err := km.Lock(context.Background(), "a", "b")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, "c", "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// "c" was acquired before the wait on "b" and must have been released
	unlockC, err := km.Lock(context.Background(), "c")
	require.NoError(t, err)
	unlockC()

	unlock()
	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutex_DuplicateKeysAndDoubleUnlock(t *testing.T) {
	km := NewKeyedMutex()

	unlock, err := km.Lock(context.Background(), "a", "a")
	require.NoError(t, err, "duplicate keys must not self-deadlock")
	unlock()
	unlock()

	unlock, err = km.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock()
}

func TestNormalizeKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, normalizeKeys([]string{"c", "a", "b", "a"}))
	assert.Empty(t, normalizeKeys(nil))
}
