// Package channel frames newline-delimited JSON over an implementation's
// standard streams.
//
// A Channel is owned by exactly one harness and is not safe for concurrent
// use. It keeps three buffers: a partial stdout line, complete lines read
// ahead of the caller, and stderr bytes not yet reported.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultReadTimeout bounds a single read attempt.
const DefaultReadTimeout = 2 * time.Second

// Channel exchanges JSON lines with one implementation.
type Channel struct {
	transport   Transport
	readTimeout time.Duration

	partial []byte
	lines   [][]byte
	stderr  []byte
	eof     bool
}

// New wraps transport. A non-positive readTimeout selects DefaultReadTimeout.
func New(transport Transport, readTimeout time.Duration) *Channel {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &Channel{transport: transport, readTimeout: readTimeout}
}

// Send writes msg as compact JSON followed by a newline, in one write.
func (c *Channel) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if c.eof || c.transport.Exited() {
		return ErrStreamClosed
	}
	data = append(data, '\n')
	if _, err := c.transport.Write(data); err != nil {
		return fmt.Errorf("%w: %w", ErrStreamClosed, err)
	}
	return nil
}

// Receive returns the next complete line, without its terminator.
//
// Errors: ErrReadTimeout when nothing arrives within the read timeout,
// *GotStderrError when stderr output is pending, ErrStreamClosed once the
// implementation's output has ended, or the context's error.
func (c *Channel) Receive(ctx context.Context) ([]byte, error) {
	if len(c.lines) > 0 {
		return c.pop(), nil
	}

	timer := time.NewTimer(c.readTimeout)
	defer timer.Stop()

	for {
		if c.eof {
			return nil, c.closedErr()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timer.C:
			if err := c.stderrErr(); err != nil {
				return nil, err
			}
			return nil, ErrReadTimeout

		case chunk, ok := <-c.transport.Chunks():
			if !ok {
				c.eof = true
				if len(c.partial) > 0 {
					c.lines = append(c.lines, c.partial)
					c.partial = nil
				}
				if err := c.stderrErr(); err != nil {
					return nil, err
				}
				if len(c.lines) > 0 {
					return c.pop(), nil
				}
				return nil, ErrStreamClosed
			}
			c.absorb(chunk)
			if chunk.Kind == Stdout {
				if err := c.stderrErr(); err != nil {
					return nil, err
				}
				if len(c.lines) > 0 {
					return c.pop(), nil
				}
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.readTimeout)
		}
	}
}

// ReceiveJSON receives one line and decodes it into v. The raw line is
// returned alongside so callers can attach it to diagnostics.
func (c *Channel) ReceiveJSON(ctx context.Context, v any) ([]byte, error) {
	line, err := c.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(line, v); err != nil {
		return line, &BadFramingError{Line: line, Err: err}
	}
	return line, nil
}

// TakeStderr drains whatever output is immediately available without
// blocking and returns (and forgets) all stderr seen so far.
func (c *Channel) TakeStderr() []byte {
	for !c.eof {
		select {
		case chunk, ok := <-c.transport.Chunks():
			if !ok {
				c.eof = true
				continue
			}
			c.absorb(chunk)
			continue
		default:
		}
		break
	}
	out := c.stderr
	c.stderr = nil
	return out
}

// Close removes the underlying process or container. Closing something
// that is already gone is not an error.
func (c *Channel) Close() error {
	c.eof = true
	if err := c.transport.Close(); err != nil && !errors.Is(err, ErrAlreadyGone) {
		return err
	}
	return nil
}

func (c *Channel) absorb(chunk Chunk) {
	switch chunk.Kind {
	case Stderr:
		c.stderr = append(c.stderr, chunk.Data...)
	default:
		c.partial = append(c.partial, chunk.Data...)
		for {
			i := bytes.IndexByte(c.partial, '\n')
			if i < 0 {
				break
			}
			line := bytes.TrimSuffix(c.partial[:i], []byte{'\r'})
			c.lines = append(c.lines, append([]byte(nil), line...))
			c.partial = c.partial[i+1:]
		}
		if len(c.partial) == 0 {
			c.partial = nil
		}
	}
}

func (c *Channel) pop() []byte {
	line := c.lines[0]
	c.lines = c.lines[1:]
	return line
}

func (c *Channel) stderrErr() error {
	if len(c.stderr) == 0 {
		return nil
	}
	err := &GotStderrError{Stderr: c.stderr}
	c.stderr = nil
	return err
}

func (c *Channel) closedErr() error {
	if err := c.stderrErr(); err != nil {
		return err
	}
	return ErrStreamClosed
}
