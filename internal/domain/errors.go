package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrConflict covers both revision-marker mismatches and identifier
	// uniqueness violations. The caller re-reads and retries with fresh state.
	ErrConflict = errors.New("conflict")
	// ErrUnauthenticated means the bearer token is missing, malformed, expired,
	// or failed signature verification. The verifier fails closed onto this.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the identity is valid but its role set does not
	// satisfy the operation's requirement.
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	// ErrThrottled surfaces after the store client exhausts its retry ceiling.
	// It is a transient-failure signal, distinct from permanent errors.
	ErrThrottled = errors.New("store throttled")
)

// ThrottleError is the store driver's capacity-exhaustion signal.
// RetryAfter carries the server-suggested delay; zero means none was given.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("throttled: %v", e.Cause)
	}
	return "throttled"
}

func (e *ThrottleError) Unwrap() error { return ErrThrottled }

// IsThrottle reports whether err is a retryable capacity signal.
func IsThrottle(err error) bool {
	var te *ThrottleError
	return errors.As(err, &te)
}
