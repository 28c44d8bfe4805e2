// Package direct runs validator implementations inside the bowtie process.
//
// A direct implementation speaks the same line protocol as a container or
// subprocess, so the harness cannot tell the difference. Its Transport
// answers each request synchronously from Write.
package direct

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/roach88/bowtie/internal/channel"
	"github.com/roach88/bowtie/internal/protocol"
)

// Validator evaluates one case against a dialect.
type Validator interface {
	// Metadata describes the implementation for the start handshake.
	Metadata() protocol.Implementation

	// Run answers a run command. The returned value is serialized as the
	// response line.
	Run(dialect string, run protocol.Run) any
}

// Transport adapts a Validator to channel.Transport.
type Transport struct {
	validator Validator

	mu      sync.Mutex
	partial []byte
	dialect string
	started bool
	exited  bool
	removed bool
	chunks  chan channel.Chunk
}

// NewTransport starts serving v.
func NewTransport(v Validator) *Transport {
	return &Transport{
		validator: v,
		chunks:    make(chan channel.Chunk, 64),
	}
}

// Write handles every complete request line in p.
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.exited {
		return 0, io.ErrClosedPipe
	}
	t.partial = append(t.partial, p...)
	for {
		i := bytes.IndexByte(t.partial, '\n')
		if i < 0 {
			break
		}
		line := t.partial[:i]
		t.partial = t.partial[i+1:]
		t.handle(line)
		if t.exited {
			break
		}
	}
	return len(p), nil
}

// Chunks implements channel.Transport.
func (t *Transport) Chunks() <-chan channel.Chunk {
	return t.chunks
}

// Exited implements channel.Transport.
func (t *Transport) Exited() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exited
}

// Close implements channel.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.removed {
		return fmt.Errorf("direct %s: %w", t.validator.Metadata().Name, channel.ErrAlreadyGone)
	}
	t.removed = true
	t.exit()
	return nil
}

func (t *Transport) handle(line []byte) {
	var probe struct {
		Cmd string `json:"cmd"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		t.stderr("invalid request: %v\n", err)
		return
	}

	switch probe.Cmd {
	case protocol.CmdStart:
		var start protocol.Start
		if err := json.Unmarshal(line, &start); err != nil {
			t.stderr("invalid start: %v\n", err)
			return
		}
		t.started = true
		t.reply(protocol.Started{
			Ready:          true,
			Version:        protocol.CurrentVersion,
			Implementation: t.validator.Metadata(),
		})

	case protocol.CmdDialect:
		var d protocol.Dialect
		if err := json.Unmarshal(line, &d); err != nil {
			t.stderr("invalid dialect: %v\n", err)
			return
		}
		t.dialect = d.Dialect
		ok := true
		t.reply(protocol.DialectAck{OK: &ok})

	case protocol.CmdRun:
		if !t.started {
			t.stderr("run before start\n")
			return
		}
		var run protocol.Run
		if err := json.Unmarshal(line, &run); err != nil {
			t.stderr("invalid run: %v\n", err)
			return
		}
		t.reply(t.validator.Run(t.dialect, run))

	case protocol.CmdStop:
		t.reply(struct{}{})
		t.exit()

	default:
		t.stderr("unknown command %q\n", probe.Cmd)
	}
}

func (t *Transport) reply(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		t.stderr("encode response: %v\n", err)
		return
	}
	t.send(channel.Chunk{Kind: channel.Stdout, Data: append(data, '\n')})
}

func (t *Transport) stderr(format string, args ...any) {
	t.send(channel.Chunk{Kind: channel.Stderr, Data: []byte(fmt.Sprintf(format, args...))})
}

// send drops output nobody will read once the buffer is full; the harness
// reads one response per request so this only happens after a hang-up.
func (t *Transport) send(c channel.Chunk) {
	if t.exited {
		return
	}
	select {
	case t.chunks <- c:
	default:
	}
}

func (t *Transport) exit() {
	if t.exited {
		return
	}
	t.exited = true
	close(t.chunks)
}
