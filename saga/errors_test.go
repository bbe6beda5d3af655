package saga_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"sagacore/saga"
)

func TestSagaErrorIsMatchesByCode(t *testing.T) {
	err := saga.NewTransactionFailure(7, fmt.Errorf("boom"))
	require.True(t, errors.Is(err, &saga.SagaError{Code: saga.ErrTransactionFailure}))
	require.False(t, errors.Is(err, &saga.SagaError{Code: saga.ErrStorageFailure}))
}

func TestIsErrorCode(t *testing.T) {
	err := saga.NewStorageFailure(fmt.Errorf("disk full"))
	require.True(t, saga.IsErrorCode(err, saga.ErrStorageFailure))
	require.False(t, saga.IsErrorCode(err, saga.ErrDAGInvariantFailure))
}

func TestSagaErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := saga.NewCompensationFailure(3, cause)
	require.ErrorIs(t, err, cause)
}
