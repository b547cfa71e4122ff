package immich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransient marks failures worth retrying: timeouts, rate limits,
	// server-side errors.
	ErrTransient = errors.New("transient remote error")
	// ErrAuth marks authentication/authorization failures.
	ErrAuth = errors.New("authentication error")
	// ErrValidation marks requests the server rejected as malformed.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks missing remote resources.
	ErrNotFound = errors.New("not found")
)

// IsTransient reports whether an error is worth retrying with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

// classifyStatus maps an HTTP status code to the matching sentinel marker.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return ErrTransient
	case status >= 400:
		return ErrValidation
	default:
		return nil
	}
}

func statusError(operation string, status int, body string) error {
	marker := classifyStatus(status)
	if marker == nil {
		marker = ErrValidation
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Errorf("%w: %s returned %d: %s", marker, operation, status, body)
}

func transportError(operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	// Network failures and deadline expiry are retryable.
	return fmt.Errorf("%w: %s: %v", ErrTransient, operation, err)
}
