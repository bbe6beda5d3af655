package cached_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"sagacore/saga"
	"sagacore/store/cached"
)

// slowSnapshotStore takes its Iterate snapshot immediately (so it reflects
// whatever the wrapped store holds at call time) but delays returning it
// until told to proceed — used to deterministically reproduce a read that
// straddles a concurrent Append. Only the first call signals started; once
// proceed is closed, later calls return at once.
type slowSnapshotStore struct {
	inner   saga.EventStore
	started chan struct{}
	proceed chan struct{}
}

func (s *slowSnapshotStore) Append(ctx context.Context, e saga.Event) (saga.Envelope, error) {
	return s.inner.Append(ctx, e)
}

func (s *slowSnapshotStore) Iterate(ctx context.Context) ([]saga.Envelope, error) {
	envelopes, err := s.inner.Iterate(ctx)
	select {
	case <-s.started:
	default:
		close(s.started)
	}
	<-s.proceed
	return envelopes, err
}

func (s *slowSnapshotStore) Populate(ctx context.Context, envelopes []saga.Envelope) error {
	return s.inner.Populate(ctx, envelopes)
}

func TestCachedStoreInvalidatesOnAppend(t *testing.T) {
	inner := saga.NewMemoryEventStore()
	store := cached.New(inner, cached.DefaultConfig())
	ctx := context.Background()

	_, err := store.Append(ctx, saga.Event{Kind: saga.SagaStarted, RequestID: 0})
	require.NoError(t, err)

	envelopes, err := store.Iterate(ctx)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)

	_, err = store.Append(ctx, saga.Event{Kind: saga.TransactionStarted, RequestID: 1})
	require.NoError(t, err)

	envelopes, err = store.Iterate(ctx)
	require.NoError(t, err)
	require.Len(t, envelopes, 2)
}

func TestCachedStoreHitsOnRepeatedIterate(t *testing.T) {
	inner := saga.NewMemoryEventStore()
	store := cached.New(inner, cached.DefaultConfig())
	ctx := context.Background()
	_, err := store.Append(ctx, saga.Event{Kind: saga.SagaStarted, RequestID: 0})
	require.NoError(t, err)

	_, err = store.Iterate(ctx)
	require.NoError(t, err)
	_, err = store.Iterate(ctx)
	require.NoError(t, err)

	stats := store.Stats()
	require.GreaterOrEqual(t, stats.Hits, int64(1))
}

// TestCachedStoreDoesNotCacheStaleSnapshotRacedByAppend guards against a
// lost-update race: an Iterate whose underlying read started before a
// concurrent Append must not let its (now stale) snapshot win the cache
// after that Append invalidated it.
func TestCachedStoreDoesNotCacheStaleSnapshotRacedByAppend(t *testing.T) {
	ctx := context.Background()
	inner := saga.NewMemoryEventStore()
	_, err := inner.Append(ctx, saga.Event{Kind: saga.SagaStarted, RequestID: 0})
	require.NoError(t, err)

	slow := &slowSnapshotStore{inner: inner, started: make(chan struct{}), proceed: make(chan struct{})}
	store := cached.New(slow, cached.DefaultConfig())

	type iterResult struct {
		envelopes []saga.Envelope
		err       error
	}
	resultCh := make(chan iterResult, 1)
	go func() {
		envelopes, err := store.Iterate(ctx)
		resultCh <- iterResult{envelopes, err}
	}()

	<-slow.started // the slow read has already snapshotted 1 envelope

	_, err = store.Append(ctx, saga.Event{Kind: saga.TransactionStarted, RequestID: 1})
	require.NoError(t, err)

	close(slow.proceed) // let the stale read return its 1-envelope snapshot
	stale := <-resultCh
	require.NoError(t, stale.err)
	require.Len(t, stale.envelopes, 1, "the racing read itself still observes its own snapshot")

	// A subsequent Iterate must not have been poisoned by the stale read
	// winning the cache after the Append invalidated it.
	fresh, err := store.Iterate(ctx)
	require.NoError(t, err)
	require.Len(t, fresh, 2, "the cache must reflect the Append, not the stale racing read")
}
