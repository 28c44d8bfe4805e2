package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/roach88/bowtie/internal/channel"
	"github.com/roach88/bowtie/internal/protocol"
)

// DefaultDialect is the dialect fake implementations claim unless told otherwise.
const DefaultDialect = "https://json-schema.org/draft/2020-12/schema"

// FakeImplementation scripts a well-behaved implementation whose behavior
// can be bent per test.
type FakeImplementation struct {
	Name     string
	Dialects []string

	// StartReply overrides the handshake entirely.
	StartReply *Reply

	// DialectOK is the "ok" answered to the dialect command; nil omits it.
	DialectOK *bool

	// OnRun answers run commands. The default answers valid=true for every test.
	OnRun func(run protocol.Run) Reply
}

// Metadata is the implementation block sent in the handshake.
func (f FakeImplementation) Metadata() protocol.Implementation {
	dialects := f.Dialects
	if dialects == nil {
		dialects = []string{DefaultDialect}
	}
	name := f.Name
	if name == "" {
		name = "fake"
	}
	return protocol.Implementation{
		Name:     name,
		Language: "go",
		Version:  "1.0.0",
		Homepage: "https://example.com/" + name,
		Issues:   "https://example.com/" + name + "/issues",
		Source:   "https://example.com/" + name + "/src",
		Dialects: dialects,
	}
}

// Handler turns the script into a transport handler.
func (f FakeImplementation) Handler() Handler {
	return func(request []byte) Reply {
		var probe struct {
			Cmd string `json:"cmd"`
		}
		if err := json.Unmarshal(request, &probe); err != nil {
			return Reply{Chunks: []channel.Chunk{Err("bad request\n")}, Exit: true}
		}
		switch probe.Cmd {
		case protocol.CmdStart:
			if f.StartReply != nil {
				return *f.StartReply
			}
			var start protocol.Start
			_ = json.Unmarshal(request, &start)
			return Reply{Chunks: []channel.Chunk{Line(protocol.Started{
				Ready:          true,
				Version:        start.Version,
				Implementation: f.Metadata(),
			})}}
		case protocol.CmdDialect:
			if f.DialectOK == nil {
				return Reply{Chunks: []channel.Chunk{Line(`{}`)}}
			}
			return Reply{Chunks: []channel.Chunk{Line(protocol.DialectAck{OK: f.DialectOK})}}
		case protocol.CmdRun:
			var run protocol.Run
			if err := json.Unmarshal(request, &run); err != nil {
				return Reply{Chunks: []channel.Chunk{Err(err.Error())}, Exit: true}
			}
			if f.OnRun != nil {
				return f.OnRun(run)
			}
			return AllValid(run, true)
		case protocol.CmdStop:
			return Reply{Chunks: []channel.Chunk{Line(`{}`)}, Exit: true}
		default:
			return Reply{Chunks: []channel.Chunk{Err("unknown command " + probe.Cmd + "\n")}}
		}
	}
}

// AllValid answers every test in run with the same verdict.
func AllValid(run protocol.Run, valid bool) Reply {
	results := make([]map[string]any, len(run.Case.Tests))
	for i := range results {
		results[i] = map[string]any{"valid": valid}
	}
	return Reply{Chunks: []channel.Chunk{Line(map[string]any{
		"seq":     run.Seq,
		"results": results,
	})}}
}

// Crash writes to stderr and exits.
func Crash(run protocol.Run) Reply {
	return Reply{Chunks: []channel.Chunk{Err("Traceback: boom\n")}, Exit: true}
}

// FakeConnectable hands out a fresh FakeTransport per connection and counts
// how many times it was asked to start one.
type FakeConnectable struct {
	Label          string
	Implementation FakeImplementation

	// ConnectErr, when set, fails every connection attempt.
	ConnectErr error

	connects   atomic.Int64
	mu         sync.Mutex
	transports []*FakeTransport
}

// Name implements harness.Connectable.
func (c *FakeConnectable) Name() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Implementation.Metadata().ID()
}

// Connect implements harness.Connectable.
func (c *FakeConnectable) Connect(ctx context.Context) (channel.Transport, error) {
	c.connects.Add(1)
	if c.ConnectErr != nil {
		return nil, c.ConnectErr
	}
	t := NewFakeTransport(c.Implementation.Handler())
	c.mu.Lock()
	c.transports = append(c.transports, t)
	c.mu.Unlock()
	return t, nil
}

// Connects counts Connect calls.
func (c *FakeConnectable) Connects() int {
	return int(c.connects.Load())
}

// Transports returns every transport handed out so far.
func (c *FakeConnectable) Transports() []*FakeTransport {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*FakeTransport, len(c.transports))
	copy(out, c.transports)
	return out
}
