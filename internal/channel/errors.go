package channel

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamClosed means the implementation can no longer be written to
	// or read from.
	ErrStreamClosed = errors.New("stream closed")

	// ErrReadTimeout means a single read attempt saw no output in time.
	ErrReadTimeout = errors.New("read timed out")
)

// GotStderrError carries everything the implementation wrote to stderr
// while a response was awaited.
type GotStderrError struct {
	Stderr []byte
}

func (e *GotStderrError) Error() string {
	return fmt.Sprintf("implementation wrote to stderr: %q", truncate(e.Stderr, 512))
}

// BadFramingError means a line arrived that is not a JSON object.
type BadFramingError struct {
	Line []byte
	Err  error
}

func (e *BadFramingError) Error() string {
	return fmt.Sprintf("invalid JSON from implementation: %v (line %q)", e.Err, truncate(e.Line, 512))
}

func (e *BadFramingError) Unwrap() error {
	return e.Err
}

// IsTransportFailure reports whether err means the implementation should be
// considered crashed: closed stream, stderr output, or bad framing.
func IsTransportFailure(err error) bool {
	if errors.Is(err, ErrStreamClosed) {
		return true
	}
	var stderrErr *GotStderrError
	if errors.As(err, &stderrErr) {
		return true
	}
	var framing *BadFramingError
	return errors.As(err, &framing)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
