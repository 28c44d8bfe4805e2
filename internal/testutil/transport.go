package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/roach88/bowtie/internal/channel"
)

// Reply is what a scripted implementation does in response to one request.
type Reply struct {
	// Chunks are delivered in order. Use Line/Err helpers to build them.
	Chunks []channel.Chunk

	// Exit ends the implementation's output after Chunks are delivered.
	Exit bool
}

// Handler scripts an implementation: it sees each request line and decides
// what to send back.
type Handler func(request []byte) Reply

// Line is a stdout chunk holding v as a JSON line. Strings and byte slices
// are sent verbatim, followed by a newline.
func Line(v any) channel.Chunk {
	var data []byte
	switch x := v.(type) {
	case string:
		data = []byte(x)
	case []byte:
		data = x
	default:
		var err error
		data, err = json.Marshal(v)
		if err != nil {
			panic(err)
		}
	}
	return channel.Chunk{Kind: channel.Stdout, Data: append(append([]byte(nil), data...), '\n')}
}

// Raw is a stdout chunk with no newline added.
func Raw(s string) channel.Chunk {
	return channel.Chunk{Kind: channel.Stdout, Data: []byte(s)}
}

// Err is a stderr chunk.
func Err(s string) channel.Chunk {
	return channel.Chunk{Kind: channel.Stderr, Data: []byte(s)}
}

// FakeTransport is an in-memory channel.Transport driven by a Handler.
//
// Thread-safety: safe for concurrent use; tests typically inspect Requests
// after the harness under test is done with it.
type FakeTransport struct {
	mu          sync.Mutex
	handler     Handler
	chunks      chan channel.Chunk
	partial     []byte
	requests    [][]byte
	outputEnded bool
	exited      bool
	removed     bool
	closeCalls  int
}

// NewFakeTransport creates a transport answering with handler. A nil
// handler never answers.
func NewFakeTransport(handler Handler) *FakeTransport {
	return &FakeTransport{
		handler: handler,
		chunks:  make(chan channel.Chunk, 1024),
	}
}

// Write records request lines and feeds complete ones to the handler.
func (f *FakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.exited || f.removed {
		return 0, io.ErrClosedPipe
	}

	f.partial = append(f.partial, p...)
	for {
		i := bytes.IndexByte(f.partial, '\n')
		if i < 0 {
			break
		}
		line := append([]byte(nil), f.partial[:i]...)
		f.partial = f.partial[i+1:]
		f.requests = append(f.requests, line)
		if f.handler == nil {
			continue
		}
		reply := f.handler(line)
		f.emitLocked(reply.Chunks...)
		if reply.Exit {
			f.exitLocked()
		}
	}
	return len(p), nil
}

// Chunks implements channel.Transport.
func (f *FakeTransport) Chunks() <-chan channel.Chunk {
	return f.chunks
}

// Exited implements channel.Transport.
func (f *FakeTransport) Exited() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exited
}

// Close implements channel.Transport.
func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closeCalls++
	if f.removed {
		return fmt.Errorf("fake transport: %w", channel.ErrAlreadyGone)
	}
	f.removed = true
	f.exitLocked()
	return nil
}

// Emit pushes chunks as if the implementation wrote them unprompted.
func (f *FakeTransport) Emit(chunks ...channel.Chunk) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitLocked(chunks...)
}

// Exit ends the implementation's output.
func (f *FakeTransport) Exit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exitLocked()
}

// Requests returns every request line written so far.
func (f *FakeTransport) Requests() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.requests))
	copy(out, f.requests)
	return out
}

// CloseCalls counts Close invocations.
func (f *FakeTransport) CloseCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

func (f *FakeTransport) emitLocked(chunks ...channel.Chunk) {
	if f.outputEnded {
		return
	}
	for _, c := range chunks {
		f.chunks <- c
	}
}

func (f *FakeTransport) exitLocked() {
	f.exited = true
	if !f.outputEnded {
		f.outputEnded = true
		close(f.chunks)
	}
}
