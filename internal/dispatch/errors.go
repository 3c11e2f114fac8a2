package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstream matches every *UpstreamError.
	ErrUpstream = errors.New("dispatch api returned an error status")

	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("dispatch api unreachable")
)

// UpstreamError is returned when the dispatch API answers with a non-2xx
// status. Body is the parsed response, or {"raw": text} when it is not JSON.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       any
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: dispatch api status %d", e.Op, e.StatusCode)
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// TransportError wraps network level failures (DNS, timeouts, resets).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
