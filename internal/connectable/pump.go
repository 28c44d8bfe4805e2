package connectable

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/bowtie/internal/channel"
)

// pump forwards output from reader goroutines onto a chunk channel until
// either the output ends or the transport is torn down.
type pump struct {
	chunks   chan channel.Chunk
	done     chan struct{}
	exited   atomic.Bool
	finished sync.Once
	stopped  sync.Once
}

func newPump() *pump {
	return &pump{
		chunks: make(chan channel.Chunk, 64),
		done:   make(chan struct{}),
	}
}

func (p *pump) writer(kind channel.StreamKind) *streamWriter {
	return &streamWriter{pump: p, kind: kind}
}

// finish marks the output ended. Safe to call more than once.
func (p *pump) finish() {
	p.finished.Do(func() {
		p.exited.Store(true)
		close(p.chunks)
	})
}

// stop unblocks any writer still trying to deliver output.
func (p *pump) stop() {
	p.stopped.Do(func() { close(p.done) })
}

type streamWriter struct {
	pump *pump
	kind channel.StreamKind
}

func (w *streamWriter) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	chunk := channel.Chunk{Kind: w.kind, Data: append([]byte(nil), b...)}
	select {
	case w.pump.chunks <- chunk:
		return len(b), nil
	case <-w.pump.done:
		return 0, channel.ErrStreamClosed
	}
}
