package domain

import (
	"errors"
	"fmt"
)

// ErrNotAvailable means the upstream source confirmed the identifier or
// range has no data. It is never retried.
var ErrNotAvailable = errors.New("not available")

// ErrInvalidDate means a caller-supplied date string matched none of the
// accepted formats. Never retried, surfaced immediately.
var ErrInvalidDate = errors.New("invalid date")

// ErrInvalidParameter means the caller passed an unusable argument
// (unknown asset type, empty symbol, reversed range).
var ErrInvalidParameter = errors.New("invalid parameter")

// UpstreamError wraps a transport or parsing failure from a provider:
// timeout, non-2xx status, malformed payload, anti-bot block. Providers may
// resolve it internally (token fallback, chunk skip); only exhausted
// fallbacks propagate it.
type UpstreamError struct {
	Source string // provider name, e.g. "tefas"
	Op     string // operation, e.g. "history"
	Status int    // HTTP status when applicable, 0 otherwise
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: upstream status %d: %v", e.Source, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Source, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream builds an UpstreamError.
func Upstream(source, op string, status int, err error) *UpstreamError {
	return &UpstreamError{Source: source, Op: op, Status: status, Err: err}
}

// IsNotAvailable reports whether err means "upstream has no such data".
func IsNotAvailable(err error) bool {
	return errors.Is(err, ErrNotAvailable)
}
