package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayErrorWrapping(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := New(KindConnectivity, "could not reach the relay", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connectivity error")
	assert.Contains(t, err.Error(), "could not reach the relay")

	var re *RelayError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, KindConnectivity, re.Kind)
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{New(KindProtocol, "bad frame", nil), KindProtocol},
		{fmt.Errorf("wrapped: %w", New(KindSession, "gone", nil)), KindSession},
		{ErrNotConnected, KindConnectivity},
		{ErrRetriesExhausted, KindConnectivity},
		{ErrUnavailable, KindConnectivity},
		{ErrTimeout, KindConnectivity},
		{ErrMissingSession, KindSession},
		{ErrSessionNotFound, KindSession},
		{errors.New("wallet balked"), KindApproval},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, KindOf(tc.err), "for %v", tc.err)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrNotConnected))
	assert.True(t, IsRetryable(New(KindProtocol, "garbled frame", nil)))
	assert.False(t, IsRetryable(ErrSessionNotFound), "session errors need a fresh link, not a retry")
	assert.False(t, IsRetryable(New(KindRejection, "declined", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "Connection lost. Please refresh.", UserMessage(ErrNotConnected))
	assert.Equal(t, "The operation timed out. Please try again.", UserMessage(ErrTimeout))
	assert.Equal(t, "Service temporarily unavailable. Please try again.", UserMessage(ErrUnavailable))

	// A RelayError message always wins over the wrapped detail.
	err := New(KindSession, "No session ID found. Please start from the correct link.", ErrMissingSession)
	assert.Equal(t, "No session ID found. Please start from the correct link.", UserMessage(err))

	// Plain errors fall through verbatim.
	assert.Equal(t, "boom", UserMessage(errors.New("boom")))
}
