package errors

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMessage(t *testing.T) {
	inner := stderrors.New("connection reset")
	err := Wrap(inner, CodeRemoteSendFailed, "send execute_action", CategoryTemporary)

	assert.Equal(t, "[REMOTE_SEND_FAILED] send execute_action: connection reset", err.Error())
	assert.True(t, stderrors.Is(err, inner))
	assert.Equal(t, CodeRemoteSendFailed, GetCode(err))
	assert.Equal(t, CategoryTemporary, GetCategory(err))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeActionFailed, "nothing", CategoryPermanent))
}

func TestWrapKeepsRetryHint(t *testing.T) {
	limited := RateLimit(CodeModelRateLimit, "slow down", 3*time.Second)
	wrapped := Wrap(limited, CodeModelUnavailable, "generate", CategoryPermanent)

	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, 3*time.Second, GetRetryAfter(wrapped))
}

func TestCategoryDefaults(t *testing.T) {
	assert.True(t, IsRetryable(Temporary("X", "x")))
	assert.False(t, IsRetryable(Permanent("X", "x")))
	assert.False(t, IsRetryable(Protocol(CodeProtocolMalformed, "bad json")))
	assert.True(t, IsRetryable(stderrors.New("plain")))
	assert.False(t, IsRetryable(nil))
	assert.Equal(t, "protocol", CategoryProtocol.String())
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	policy := &Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 1, RetryIf: IsRetryable}

	attempts := 0
	got, err := DoWithResult(context.Background(), policy, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", Temporary("FLAKY", "try again")
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnPermanent(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), DefaultPolicy(), func() error {
		attempts++
		return Permanent(CodeModelInvalidResponse, "no choices")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, CodeModelInvalidResponse, GetCode(err))
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := &Policy{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 1, RetryIf: IsRetryable}

	err := Do(ctx, policy, func() error {
		cancel()
		return Temporary("FLAKY", "again")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
