// Package ai provides common types shared by the collaborator providers
// (transcription, reply generation, synthesis): the error taxonomy, retry
// configuration, and request identity used for cooperative cancellation.
package ai

import (
	"errors"
	"sync/atomic"
	"time"
)

// Common error classes used across collaborator providers.
var (
	// ErrRecoverable indicates a temporary failure that may succeed if retried.
	// Examples: network timeout, rate limiting, temporary service unavailability.
	ErrRecoverable = errors.New("recoverable provider error")

	// ErrFatal indicates a permanent failure that will not succeed if retried.
	// Examples: invalid API key, unsupported format, malformed request.
	ErrFatal = errors.New("fatal provider error")

	// ErrCanceled indicates the request was canceled by its owner (barge-in,
	// superseded session). Responses arriving after cancellation are discarded.
	ErrCanceled = errors.New("request canceled")
)

// RetryConfig configures retry behavior for recoverable errors.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterPercent float32 // 0.0-1.0
}

// DefaultRetryConfig provides sensible defaults for collaborator retries.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      5 * time.Second,
	BackoffFactor: 2.0,
	JitterPercent: 0.1,
}

// IsRecoverable reports whether an error should be retried.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// IsFatal reports whether an error should fail fast.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// IsCanceled reports whether an error is a cooperative cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// RetryableError wraps an underlying error with retry classification.
type RetryableError struct {
	Underlying error
	Retryable  bool
	Message    string
}

func (e *RetryableError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Underlying.Error()
}

func (e *RetryableError) Unwrap() error {
	if e.Retryable {
		return ErrRecoverable
	}
	return ErrFatal
}

// NewRecoverableError creates a recoverable error with context.
func NewRecoverableError(underlying error, message string) error {
	return &RetryableError{Underlying: underlying, Retryable: true, Message: message}
}

// NewFatalError creates a fatal error with context.
func NewFatalError(underlying error, message string) error {
	return &RetryableError{Underlying: underlying, Retryable: false, Message: message}
}

// RequestID identifies one outbound collaborator request. Providers assign a
// process-unique ID to every stream or synthesis; the engine records which
// session generation owns each ID so a response arriving after its session
// was superseded is discarded rather than acted on.
type RequestID uint64

var requestCounter atomic.Uint64

// NextRequestID returns a process-unique request identity.
func NextRequestID() RequestID {
	return RequestID(requestCounter.Add(1))
}
