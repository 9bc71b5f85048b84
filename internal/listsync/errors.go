package listsync

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned for a fetch that was superseded or cancelled.
	// It is an expected outcome and never surfaces as a list error.
	ErrCancelled = errors.New("page fetch cancelled")

	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("list controller closed")
)

// ParameterError reports malformed query parameters. It is returned at call
// time and no request is issued.
type ParameterError struct {
	Field  string
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid query parameter %q: %s", e.Field, e.Reason)
}

// FetchError is a failed page fetch (network or server). The list keeps the
// pages it already has when a follow-up page fails.
type FetchError struct {
	PageIndex  int
	Generation uint64
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page %d: %v", e.PageIndex, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsCancelled reports whether err represents a cancelled fetch.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsParameterError reports whether err is a ParameterError.
func IsParameterError(err error) bool {
	var pe *ParameterError
	return errors.As(err, &pe)
}
