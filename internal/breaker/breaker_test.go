package breaker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDoReturnsTypedResult(t *testing.T) {
	cb := New("test", zap.NewNop())
	n, err := Do(cb, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	cb := NewWithSettings("test", 2, time.Hour, zap.NewNop())
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_, err := Do(cb, func() (string, error) { return "", boom })
		assert.ErrorIs(t, err, boom)
	}

	called := false
	_, err := Do(cb, func() (string, error) {
		called = true
		return "ok", nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestClientErrorsDoNotTrip(t *testing.T) {
	cb := NewWithSettings("test", 2, time.Hour, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := Do(cb, func() (string, error) {
			return "", &StatusError{Service: "github", Code: 409}
		})
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 409, se.Code)
	}
	_, err := Do(cb, func() (string, error) {
		return "", fmt.Errorf("request failed: %w", context.Canceled)
	})
	assert.ErrorIs(t, err, context.Canceled)

	got, err := Do(cb, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestServerErrorsTrip(t *testing.T) {
	cb := NewWithSettings("test", 2, time.Hour, zap.NewNop())
	for _, code := range []int{500, 429} {
		_, err := Do(cb, func() (string, error) {
			return "", &StatusError{Service: "llm", Code: code}
		})
		require.Error(t, err)
	}
	_, err := Do(cb, func() (string, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestIsSuccessful(t *testing.T) {
	assert.True(t, IsSuccessful(nil))
	assert.True(t, IsSuccessful(&StatusError{Code: 404}))
	assert.True(t, IsSuccessful(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.False(t, IsSuccessful(&StatusError{Code: 429}))
	assert.False(t, IsSuccessful(&StatusError{Code: 502}))
	assert.False(t, IsSuccessful(errors.New("connection refused")))
}

func TestStatusErrorMessage(t *testing.T) {
	assert.Equal(t, "github API error: 409", (&StatusError{Service: "github", Code: 409}).Error())
	assert.Equal(t, "llm API error (status 400): bad model", (&StatusError{Service: "llm", Code: 400, Body: "bad model"}).Error())
}
