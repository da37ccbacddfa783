package composables

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUseTx_NoPool(t *testing.T) {
	t.Parallel()

	_, err := UseTx(context.Background())
	require.ErrorIs(t, err, ErrNoPool)
}

func TestInTx_NoPool(t *testing.T) {
	t.Parallel()

	called := false
	err := InTx(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrNoPool)
	require.False(t, called)
}

func TestInTxResult_PropagatesPoolError(t *testing.T) {
	t.Parallel()

	out, err := InTxResult(context.Background(), func(context.Context) (int, error) {
		return 42, errors.New("unreachable")
	})
	require.ErrorIs(t, err, ErrNoPool)
	require.Zero(t, out)
}
