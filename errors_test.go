package rabbitlink

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors_MatchAcrossWrapping(t *testing.T) {
	wrapped := fmt.Errorf("dial failed: %w", ErrNotConnected)
	assert.ErrorIs(t, wrapped, ErrNotConnected)
}

func TestTypedErrors_MatchWithErrorsAs(t *testing.T) {
	var err error = &PublishError{MessageID: "msg-1", Err: ErrNacked}

	var publishErr *PublishError
	require := assert.New(t)
	require.True(errors.As(err, &publishErr))
	require.Equal("msg-1", publishErr.MessageID)
	require.ErrorIs(err, ErrNacked)
}
