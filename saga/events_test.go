package saga_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"sagacore/saga"
)

func TestMemoryEventStoreAppendAssignsMonotonicIDs(t *testing.T) {
	store := saga.NewMemoryEventStore()
	ctx := context.Background()

	e1, err := store.Append(ctx, saga.Event{Kind: saga.SagaStarted, RequestID: 0})
	require.NoError(t, err)
	e2, err := store.Append(ctx, saga.Event{Kind: saga.TransactionStarted, RequestID: 1})
	require.NoError(t, err)

	require.Equal(t, uint64(1), e1.ID)
	require.Equal(t, uint64(2), e2.ID)

	envelopes, err := store.Iterate(ctx)
	require.NoError(t, err)
	require.Equal(t, []saga.Envelope{e1, e2}, envelopes)
}

func TestMemoryEventStorePopulateRejectedAfterAppend(t *testing.T) {
	store := saga.NewMemoryEventStore()
	ctx := context.Background()
	_, err := store.Append(ctx, saga.Event{Kind: saga.SagaStarted, RequestID: 0})
	require.NoError(t, err)

	err = store.Populate(ctx, []saga.Envelope{{ID: 1, Event: saga.Event{Kind: saga.SagaStarted, RequestID: 0}}})
	require.Error(t, err)
	require.True(t, saga.IsErrorCode(err, saga.ErrReplayInconsistency))
}

func TestMemoryEventStorePopulatePreservesIDsAndContinuesSequence(t *testing.T) {
	store := saga.NewMemoryEventStore()
	ctx := context.Background()

	prefix := []saga.Envelope{
		{ID: 5, Event: saga.Event{Kind: saga.SagaStarted, RequestID: 0}},
		{ID: 9, Event: saga.Event{Kind: saga.TransactionStarted, RequestID: 1}},
	}
	require.NoError(t, store.Populate(ctx, prefix))

	next, err := store.Append(ctx, saga.Event{Kind: saga.TransactionEnded, RequestID: 1})
	require.NoError(t, err)
	require.Equal(t, uint64(10), next.ID)

	envelopes, err := store.Iterate(ctx)
	require.NoError(t, err)
	require.Len(t, envelopes, 3)
}
