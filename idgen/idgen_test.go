package idgen_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"sagacore/idgen"
)

func TestCounterMonotonic(t *testing.T) {
	c := idgen.NewCounter()
	require.Equal(t, uint64(1), c.NextID())
	require.Equal(t, uint64(2), c.NextID())
	require.Equal(t, uint64(3), c.NextID())
}

func TestCounterFrom(t *testing.T) {
	c := idgen.NewCounterFrom(41)
	require.Equal(t, uint64(42), c.NextID())
	require.Equal(t, uint64(43), c.NextID())
}

func TestCounterConcurrentUnique(t *testing.T) {
	c := idgen.NewCounter()
	const n = 500
	ids := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = c.NextID()
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for _, id := range ids {
		require.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	require.Len(t, seen, n)
}
