package channel

import "errors"

// StreamKind tags which standard stream a chunk arrived on.
type StreamKind int

const (
	// Stdout carries protocol responses.
	Stdout StreamKind = iota + 1
	// Stderr carries diagnostics; any of it during a request is a failure.
	Stderr
)

func (k StreamKind) String() string {
	switch k {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// Chunk is one read from the implementation. Data may hold a partial line,
// one line, or several.
type Chunk struct {
	Kind StreamKind
	Data []byte
}

// Transport is the byte-level connection to one running implementation.
//
// Implementations: connectable.Process (local process pipes),
// connectable.Container (docker attach), direct.Transport (in-process).
type Transport interface {
	// Write sends bytes to the implementation's stdin.
	Write(p []byte) (int, error)

	// Chunks delivers output as it arrives. The channel is closed once the
	// implementation's output streams have ended.
	Chunks() <-chan Chunk

	// Exited reports whether the implementation is known to have exited.
	Exited() bool

	// Close forcibly removes the underlying process or container.
	// It returns an error wrapping ErrAlreadyGone if there was nothing to remove.
	Close() error
}

// ErrAlreadyGone is wrapped by Transport.Close when the resource no longer exists.
var ErrAlreadyGone = errors.New("already gone")
