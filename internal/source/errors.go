package source

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch matches every *FetchError via errors.Is.
	ErrFetch = errors.New("fetch failed")
	// ErrMalformedSource matches every *MalformedSourceError via errors.Is.
	ErrMalformedSource = errors.New("malformed source")
)

// FetchError reports an unreachable upstream or a non-success response.
type FetchError struct {
	URL string
	// StatusCode is zero for transport-level failures.
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// MalformedSourceError reports that the page no longer has the expected
// shape: missing marker, unparsable JSON or an unexpected structure.
type MalformedSourceError struct {
	Reason string
	Err    error
}

func (e *MalformedSourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed source: %s: %v", e.Reason, e.Err)
	}
	return "malformed source: " + e.Reason
}

func (e *MalformedSourceError) Unwrap() error { return e.Err }

func (e *MalformedSourceError) Is(target error) bool { return target == ErrMalformedSource }

func malformed(format string, args ...any) error {
	return &MalformedSourceError{Reason: fmt.Sprintf(format, args...)}
}
