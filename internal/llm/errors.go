package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error kinds. Match them with errors.Is against an *Error.
var (
	// ErrTransient covers rate limiting and timeouts; the explanation path retries these.
	ErrTransient = errors.New("transient provider error")
	// ErrPermanent covers rejected requests, auth failures and unparseable replies.
	ErrPermanent = errors.New("permanent provider error")
	// ErrConfiguration means the provider is unknown or not configured.
	ErrConfiguration = errors.New("llm configuration error")
	// ErrUpstreamTransport means the local inference server could not be reached or failed.
	ErrUpstreamTransport = errors.New("upstream transport error")
)

// Error is the only error type that leaves this package. It keeps the
// provider's original message for diagnostics but never wraps SDK types.
type Error struct {
	Provider string
	Kind     error
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Provider, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(provider string, kind error, format string, args ...any) *Error {
	return &Error{Provider: provider, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// isTransient reports whether err should move the retry state machine to BACKOFF.
func isTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// isTimeout reports whether err is a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// asError converts any error into an *Error, keeping an existing classification.
func asError(provider string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) {
		return newError(provider, ErrPermanent, "request cancelled: %v", err)
	}
	if isTimeout(err) {
		return newError(provider, ErrTransient, "%v", err)
	}
	return newError(provider, ErrPermanent, "%v", err)
}
