// Package resilience wraps every remote call in the protective pipeline
// rate limiter, circuit breaker, retry policy.
package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/phoorichet/confluence-sync-sub002/internal/apierr"
)

// statusCarrier is satisfied by errors that know their HTTP status.
type statusCarrier interface {
	HTTPStatus() int
}

var transientSyscalls = []error{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.EPIPE,
	syscall.EHOSTUNREACH,
	syscall.ENETUNREACH,
	syscall.ETIMEDOUT,
}

var transientPhrases = []string{
	"connection reset",
	"connection refused",
	"econnreset",
	"econnrefused",
	"timeout",
	"timed out",
	"temporarily unavailable",
	"service unavailable",
	"too many requests",
	"try again",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"host is unreachable",
}

// IsTransient reports whether a failure is expected to succeed on retry.
// Network faults, timeouts, and throttling or gateway statuses (408, 429,
// 502, 503, 504) qualify; other client errors and cancellation do not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae.Kind.Transient()
	}

	var sc statusCarrier
	if errors.As(err, &sc) {
		if status := sc.HTTPStatus(); status != 0 {
			return transientStatus(status)
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	for _, code := range transientSyscalls {
		if errors.Is(err, code) {
			return true
		}
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range transientPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}

	return false
}

func transientStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
