package serrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseError_IsMatchesByCode(t *testing.T) {
	t.Parallel()

	sentinel := NewError("JOBS_INVALID_CONFIG", "invalid jobs configuration", "")
	wrapped := fmt.Errorf("%w: pool is required", sentinel)

	require.ErrorIs(t, wrapped, sentinel)
	require.ErrorIs(t, wrapped, NewError("JOBS_INVALID_CONFIG", "other message", ""))
	require.NotErrorIs(t, wrapped, NewError("EVENTBUS_NO_SUBSCRIBERS", "", ""))

	var be *BaseError
	require.True(t, errors.As(wrapped, &be))
	require.Equal(t, "JOBS_INVALID_CONFIG", be.Code)
}
