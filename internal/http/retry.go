package http

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	nethttp "net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrorType is the retry class of a failed round trip.
type ErrorType int

const (
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeCredential is a rejected API key (401, 403).
	ErrorTypeCredential
	// ErrorTypeNetwork is a transport failure: refused, reset, DNS, timeout.
	ErrorTypeNetwork
	// ErrorTypeRetryable is a server-side failure worth repeating (408, 429, 5xx).
	ErrorTypeRetryable
	// ErrorTypeFatal is a request the server will keep rejecting.
	ErrorTypeFatal
	// ErrorTypeCancelled means the caller gave up; never retried.
	ErrorTypeCancelled
)

var errorTypeNames = [...]string{"success", "credential", "network", "retryable", "fatal", "cancelled"}

func (t ErrorType) String() string {
	if t < 0 || int(t) >= len(errorTypeNames) {
		return "unknown"
	}
	return errorTypeNames[t]
}

// transientErrnos are socket errors a fresh connection can recover from.
var transientErrnos = []syscall.Errno{
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.ECONNABORTED,
	syscall.EPIPE,
	syscall.ETIMEDOUT,
	syscall.EHOSTUNREACH,
	syscall.ENETUNREACH,
}

// ClassifyError returns the retry class of a transport error.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}
	if errors.Is(err, context.Canceled) {
		return ErrorTypeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrorTypeNetwork
	}
	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return ErrorTypeNetwork
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorTypeNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrorTypeNetwork
	}

	// Proxies and TLS stacks do not always wrap the errno.
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection reset", "connection refused", "broken pipe", "tls handshake timeout"} {
		if strings.Contains(msg, s) {
			return ErrorTypeNetwork
		}
	}
	return ErrorTypeFatal
}

// ClassifyResponse returns the retry class of a completed round trip.
// err takes precedence over the response.
func ClassifyResponse(resp *nethttp.Response, err error) ErrorType {
	if err != nil {
		return ClassifyError(err)
	}
	if resp == nil {
		return ErrorTypeFatal
	}
	switch code := resp.StatusCode; {
	case code < 300:
		return ErrorTypeSuccess
	case code == nethttp.StatusUnauthorized || code == nethttp.StatusForbidden:
		return ErrorTypeCredential
	case code == nethttp.StatusRequestTimeout || code == nethttp.StatusTooManyRequests:
		return ErrorTypeRetryable
	case code == nethttp.StatusNotImplemented:
		return ErrorTypeFatal
	case code >= 500:
		return ErrorTypeRetryable
	default:
		return ErrorTypeFatal
	}
}

// CalculateBackoff returns a full-jitter exponential backoff:
// random(0, min(maxDelay, initialDelay * 2^attempt)).
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}
	ceiling := maxDelay
	if attempt < 63 && initialDelay <= maxDelay>>attempt {
		ceiling = initialDelay << attempt
	}
	if ceiling <= 0 {
		return 0
	}
	return rand.N(ceiling)
}

// RetryAfter returns the wait requested by a Retry-After header, given in
// seconds or as an HTTP date. Absent, malformed and past values yield zero.
func RetryAfter(resp *nethttp.Response) time.Duration {
	if resp == nil {
		return 0
	}
	return parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return max(time.Duration(secs)*time.Second, 0)
	}
	if at, err := nethttp.ParseTime(v); err == nil {
		return max(at.Sub(now).Round(time.Second), 0)
	}
	return 0
}
