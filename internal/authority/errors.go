// internal/authority/errors.go
package authority

import (
	"errors"
	"fmt"
	"net/http"
)

// Taxonomy of authority failures. Every *Error unwraps to exactly one of these.
var (
	ErrUnreachable = errors.New("authority unreachable")
	ErrRejected    = errors.New("authority rejected the request")
	ErrFault       = errors.New("authority fault")
)

// ErrRateLimited is a rejection the caller may retry after a short wait.
var ErrRateLimited = fmt.Errorf("%w: too many requests, wait a moment and retry", ErrRejected)

// Error describes a failed authority call.
type Error struct {
	Op     string
	Status int
	Detail string
	kind   error
	cause  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.cause != nil {
		msg += fmt.Sprintf(" (%v)", e.cause)
	}
	return msg
}

// Unwrap exposes both the taxonomy sentinel and the transport cause.
func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// RateLimited reports whether the authority asked the client to slow down.
func (e *Error) RateLimited() bool {
	return e.kind == ErrRateLimited
}

func unreachable(op string, cause error) *Error {
	return &Error{Op: op, kind: ErrUnreachable, cause: cause}
}

// statusError classifies a non-2xx response.
func statusError(op string, status int, detail string) *Error {
	e := &Error{Op: op, Status: status, Detail: detail}
	switch {
	case status == http.StatusTooManyRequests:
		e.kind = ErrRateLimited
	case status >= 500:
		e.kind = ErrFault
	default:
		e.kind = ErrRejected
	}
	return e
}

// UserMessage renders an error for user-facing display, keeping rate limiting distinct from
// validation failures.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "Too many requests. Wait a moment and try again."
	case errors.Is(err, ErrUnreachable):
		return "Network error. Check your connection and try again."
	case errors.Is(err, ErrFault):
		return "Server error. Try again later."
	}
	var ae *Error
	if errors.As(err, &ae) {
		switch ae.Status {
		case http.StatusUnauthorized:
			return "Authorization failed. Sign in again."
		case http.StatusUnprocessableEntity:
			return "Validation error: " + ae.Detail
		}
		if ae.Detail != "" {
			return ae.Detail
		}
	}
	return err.Error()
}
