// Package breaker wraps calls to third-party APIs (OpenAI, GitHub, Figma,
// Firebase) in circuit breakers, so a dead upstream fails fast instead of
// stalling every poll loop on its timeout.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrOpen is returned while the breaker is open.
var ErrOpen = gobreaker.ErrOpenState

// StatusError is a non-2xx reply from an upstream API.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API error: %d", e.Service, e.Code)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.Code, e.Body)
}

// IsSuccessful reports whether err says nothing about upstream health.
// Client errors (4xx other than 429) and cancellations don't count as
// failures.
func IsSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
	}
	return false
}

// New returns a breaker that opens after 5 consecutive failures and probes
// again after 30 seconds.
func New(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return NewWithSettings(name, 5, 30*time.Second, logger)
}

// NewWithSettings returns a breaker that opens after maxFailures consecutive
// failures and stays open for openFor.
func NewWithSettings(name string, maxFailures uint32, openFor time.Duration, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      openFor,
		IsSuccessful: IsSuccessful,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// Do runs fn through cb and returns its typed result.
func Do[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	out, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}
