// Package api provides the REST client for the charging dashboard API and
// the per-resource data sources used by list synchronization.
package api

import (
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
)

// Status classes returned by the API. StatusError unwraps to one of these.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrBadRequest   = errors.New("bad request")
	ErrServer       = errors.New("server error")
)

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	RequestID  string
	// Body is the start of the response body, for diagnostics.
	Body string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s failed: status %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Unwrap returns the status class sentinel.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == nethttp.StatusUnauthorized || e.StatusCode == nethttp.StatusForbidden:
		return ErrUnauthorized
	case e.StatusCode == nethttp.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == nethttp.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode >= 500:
		return ErrServer
	default:
		return ErrBadRequest
	}
}

const maxErrorBody = 512

// checkStatus returns nil for 2xx responses and a *StatusError otherwise.
// It reads (part of) the body on failure but never closes it.
func checkStatus(resp *nethttp.Response, method, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	serr := &StatusError{
		StatusCode: resp.StatusCode,
		Method:     method,
		Path:       path,
		Body:       strings.TrimSpace(string(body)),
	}
	if resp.Request != nil {
		serr.RequestID = resp.Request.Header.Get(headerRequestID)
	}
	return serr
}

// IsAuthError reports whether err is an authentication or permission failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
