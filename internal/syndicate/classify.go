package syndicate

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Classify maps an arbitrary upstream failure to the normalized taxonomy.
// It is a pure function: the same error always yields the same triple. The
// nested provider message, when present, wins over the transport message.
func Classify(err error) (ErrorKind, string, time.Duration) {
	if err == nil {
		return ErrUnknown, "unknown error", 0
	}

	var vErr ValidationError
	if errors.As(err, &vErr) {
		return ErrValidation, vErr.Reason, 0
	}

	var shapeErr UpstreamShapeError
	if errors.As(err, &shapeErr) {
		return ErrUpstreamInvalid, shapeErr.Error(), 0
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.UpstreamMessage
		if msg == "" {
			msg = apiErr.Message
		}
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized:
			return ErrAuth, msg, 0
		case apiErr.StatusCode == http.StatusForbidden:
			return ErrPermission, msg, 0
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return ErrRateLimit, msg, apiErr.RetryAfter
		case apiErr.StatusCode >= 500:
			return ErrUpstreamInvalid, msg, 0
		case apiErr.StatusCode >= 400:
			return ErrValidation, msg, 0
		}
		return ErrUnknown, msg, 0
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout, "request timed out", 0
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout, "request timed out", 0
	}

	return ErrUnknown, err.Error(), 0
}

// ParseRetryAfter reads a seconds-valued Retry-After header. Malformed or
// absent values come back as zero.
func ParseRetryAfter(header http.Header) time.Duration {
	raw := header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
