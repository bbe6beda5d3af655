package saga_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"sagacore/dag"
	"sagacore/saga"
)

// wideDAG builds root -> width parallel Process children -> leaf, the
// widest anti-chain the scheduler must be able to run fully concurrently
// (§5: "at least as much parallelism as the widest anti-chain").
func wideDAG(t *testing.T, width int, calls *atomic.Int64) *dag.DAG[saga.Request] {
	t.Helper()
	b := dag.NewBuilder[saga.Request]()
	b.AddNode(0, saga.NewStartRequest())
	leafID := width + 1
	for i := 1; i <= width; i++ {
		b.AddNode(i, saga.NewProcessRequest(countingOK(calls), countingOK(calls)))
		b.AddEdge(0, i).AddEdge(i, leafID)
	}
	b.AddNode(leafID, saga.NewEndRequest())
	d, err := b.Build()
	require.NoError(t, err)
	return d
}

// Run with `go test -race` to exercise the mutex-protected
// {completed, inFlight, aborted} scheduler state under real concurrency.
func TestSchedulerWideFanOutRace(t *testing.T) {
	const width = 32
	for iter := 0; iter < 20; iter++ {
		var calls atomic.Int64
		d := wideDAG(t, width, &calls)
		store := saga.NewMemoryEventStore()
		sg := saga.New(d, store)

		result, err := sg.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, saga.ForwardSucceeded, result.Outcome)
		require.EqualValues(t, width, calls.Load())
		require.Len(t, result.Envelopes, 1+2*width+1)
	}
}

func TestMemoryEventStoreConcurrentAppendRace(t *testing.T) {
	store := saga.NewMemoryEventStore()
	const n = 200
	done := make(chan uint64, n)
	for i := 0; i < n; i++ {
		go func() {
			env, err := store.Append(context.Background(), saga.Event{Kind: saga.TransactionStarted, RequestID: 1})
			require.NoError(t, err)
			done <- env.ID
		}()
	}
	seen := make(map[uint64]bool, n)
	for i := 0; i < n; i++ {
		id := <-done
		require.False(t, seen[id])
		seen[id] = true
	}
	envelopes, err := store.Iterate(context.Background())
	require.NoError(t, err)
	require.Len(t, envelopes, n)
}
