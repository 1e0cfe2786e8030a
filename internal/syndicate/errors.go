package syndicate

import (
	"fmt"
	"time"
)

// ErrorKind is the destination-agnostic failure taxonomy surfaced to callers.
type ErrorKind string

const (
	ErrValidation      ErrorKind = "validation"
	ErrAuth            ErrorKind = "auth"
	ErrPermission      ErrorKind = "permission"
	ErrRateLimit       ErrorKind = "rate_limit"
	ErrUpstreamInvalid ErrorKind = "upstream_invalid"
	ErrTimeout         ErrorKind = "timeout"
	ErrUnknown         ErrorKind = "unknown"
)

// ValidationError captures destination-specific validation issues detected
// before any network call.
type ValidationError struct {
	Destination string
	Reason      string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Destination, e.Reason)
}

// APIError is the parsed shape of an upstream HTTP failure. Adapters decode
// their destination's native error envelope into it so the classifier only
// ever sees one shape.
type APIError struct {
	Destination string
	StatusCode  int
	// Message is the transport-level description (status text, endpoint).
	Message string
	// UpstreamMessage is the nested provider error message, preferred over
	// Message when present.
	UpstreamMessage string
	RetryAfter      time.Duration
}

func (e *APIError) Error() string {
	msg := e.UpstreamMessage
	if msg == "" {
		msg = e.Message
	}
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Destination, msg, e.StatusCode)
}

// UpstreamShapeError marks a success-status response whose body did not match
// the destination's documented shape.
type UpstreamShapeError struct {
	Destination string
	Detail      string
}

func (e UpstreamShapeError) Error() string {
	return fmt.Sprintf("%s returned an unexpected response: %s", e.Destination, e.Detail)
}
