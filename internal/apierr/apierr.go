// Package apierr normalizes remote-call failures into a stable, numbered
// error vocabulary safe to log and surface.
package apierr

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

// Kind identifies a stable category of remote failure. The numeric values
// are part of the surface contract and must not be reordered.
type Kind int

const (
	KindUnknown Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
	KindServerError
	KindBadGateway
	KindUnavailable
	KindTimeout
	KindCircuitOpen
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad request"
	case KindUnauthorized:
		return "auth failure"
	case KindForbidden:
		return "permission denied"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate limited"
	case KindServerError:
		return "server error"
	case KindBadGateway:
		return "bad gateway"
	case KindUnavailable:
		return "service unavailable"
	case KindTimeout:
		return "timeout"
	case KindCircuitOpen:
		return "circuit open"
	default:
		return "unknown error"
	}
}

// Transient reports whether failures of this kind are worth retrying.
// Plain 500s stay non-transient; only throttling and gateway/availability
// failures qualify.
func (k Kind) Transient() bool {
	switch k {
	case KindRateLimited, KindBadGateway, KindUnavailable, KindTimeout:
		return true
	default:
		return false
	}
}

// Error is a normalized failure carrying a stable kind, the originating
// status code when one exists, and a sanitized detail message.
type Error struct {
	Kind   Kind
	Status int
	Detail string
}

// Code returns the machine-readable code for the error's kind, e.g. "E04".
func (e *Error) Code() string {
	return fmt.Sprintf("E%02d", int(e.Kind))
}

// HTTPStatus returns the originating status code, 0 when none applies.
func (e *Error) HTTPStatus() int {
	return e.Status
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := fmt.Sprintf("[%s] %s", e.Code(), e.Kind)
	if e.Detail != "" {
		msg += ": " + Sanitize(e.Detail)
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	return msg
}

// FromStatus maps an HTTP-like status code to a normalized Error. Statuses
// outside the known set map to KindUnknown while keeping the numeric code.
func FromStatus(status int, detail string) *Error {
	kind := KindUnknown
	switch status {
	case http.StatusBadRequest:
		kind = KindBadRequest
	case http.StatusUnauthorized:
		kind = KindUnauthorized
	case http.StatusForbidden:
		kind = KindForbidden
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusConflict:
		kind = KindConflict
	case http.StatusTooManyRequests:
		kind = KindRateLimited
	case http.StatusInternalServerError:
		kind = KindServerError
	case http.StatusBadGateway:
		kind = KindBadGateway
	case http.StatusServiceUnavailable:
		kind = KindUnavailable
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		kind = KindTimeout
	}

	return &Error{Kind: kind, Status: status, Detail: detail}
}

// NewCircuitOpen builds the rejection returned while a breaker sheds calls.
// The wait is rounded up so callers are never told to retry in 0 seconds.
func NewCircuitOpen(wait time.Duration) *Error {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return &Error{
		Kind:   KindCircuitOpen,
		Detail: fmt.Sprintf("service unavailable, retry in %d seconds", secs),
	}
}

// statusCarrier matches transport errors that expose their HTTP status
// without this package importing theirs.
type statusCarrier interface {
	HTTPStatus() int
}

// KindOf extracts the Kind from an error chain. Errors exposing an HTTP
// status classify through FromStatus; everything else is KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	var sc statusCarrier
	if errors.As(err, &sc) && sc.HTTPStatus() != 0 {
		return FromStatus(sc.HTTPStatus(), "").Kind
	}
	return KindUnknown
}
