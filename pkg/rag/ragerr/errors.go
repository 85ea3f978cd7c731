package ragerr

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for conditions the transport layer maps to status codes.
var (
	ErrCircuitOpen      = errors.New("generation provider temporarily unavailable")
	ErrProviderTimeout  = errors.New("generation provider timed out")
	ErrSessionNotFound  = errors.New("session not found or access denied")
	ErrDocumentNotFound = errors.New("document not found or access denied")
	ErrSpendingExceeded = errors.New("session spending limit exceeded")
)

// ValidationError rejects bad input before any provider call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InjectionSuspected is a ValidationError specialisation raised when a
// prompt-injection marker matches. Kept distinct so callers can log it
// at warn level without string inspection.
type InjectionSuspected struct {
	Pattern string
}

func (e *InjectionSuspected) Error() string {
	return "message rejected: suspected prompt injection"
}

// RateLimitExceeded carries retry hints for the 429 payload.
type RateLimitExceeded struct {
	Limit      int
	Used       int
	RetryAfter time.Duration
}

func (e *RateLimitExceeded) Error() string {
	return "session query limit exceeded"
}

// StreamLimitExceeded signals the concurrent-stream ceiling.
type StreamLimitExceeded struct {
	Limit int
}

func (e *StreamLimitExceeded) Error() string {
	return "too many concurrent streams for session"
}

// ProviderError wraps a generation failure with a sanitized public
// message; the raw cause stays server-side for logs only.
type ProviderError struct {
	Public string
	cause  error
}

func NewProviderError(public string, cause error) *ProviderError {
	return &ProviderError{Public: public, cause: cause}
}

func (e *ProviderError) Error() string {
	return e.Public
}

func (e *ProviderError) Unwrap() error {
	return e.cause
}

// Sanitize returns a message safe to surface to the end user. Raw
// provider text, auth details and stack traces never pass through here.
func Sanitize(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCircuitOpen):
		return "The assistant is temporarily unavailable. Please try again shortly."
	case errors.Is(err, ErrProviderTimeout):
		return "The response took too long to generate. Please try again."
	default:
		var pe *ProviderError
		if errors.As(err, &pe) {
			return pe.Public
		}
		return "Something went wrong while generating the response."
	}
}
