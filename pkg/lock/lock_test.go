package lock

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutualExclusion(t *testing.T) {
	locker := NewKeyed()
	ctx := context.Background()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "u1")
			require.NoError(t, err)
			defer release()
			counter++
		}()
	}
	wg.Wait()

	require.Equal(t, 50, counter)
}

func TestKeyedIndependentKeys(t *testing.T) {
	locker := NewKeyed()
	ctx := context.Background()

	releaseA, err := locker.Acquire(ctx, "a")
	require.NoError(t, err)
	defer releaseA()

	// A different key must not block behind "a".
	releaseB, err := locker.Acquire(ctx, "b")
	require.NoError(t, err)
	releaseB()
}

func TestKeyedReleaseIsIdempotent(t *testing.T) {
	locker := NewKeyed()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "u1")
	require.NoError(t, err)
	release()
	release()

	release, err = locker.Acquire(ctx, "u1")
	require.NoError(t, err)
	release()
}

func TestKeyedReclaimsEntries(t *testing.T) {
	locker := NewKeyed().(*keyedMutex)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		release, err := locker.Acquire(ctx, key)
		require.NoError(t, err)
		release()
	}

	locker.mu.Lock()
	defer locker.mu.Unlock()
	require.Empty(t, locker.entries)
}
