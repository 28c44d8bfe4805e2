// Package reporter turns engine events into the line-oriented result
// stream and fans them out to other sinks.
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/roach88/bowtie/internal/cases"
	"github.com/roach88/bowtie/internal/engine"
	"github.com/roach88/bowtie/internal/report"
	"github.com/roach88/bowtie/internal/result"
)

var (
	_ engine.Reporter = (*Stream)(nil)
	_ engine.Reporter = (*Collector)(nil)
	_ engine.Reporter = Multi(nil)
)

// HeaderFor builds the header line a run starts with.
func HeaderFor(info engine.RunInfo, version string) report.Header {
	metadata := info.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return report.Header{
		Implementations: info.Implementations,
		Dialect:         info.Dialect.URI,
		BowtieVersion:   version,
		RunID:           info.RunID,
		Started:         info.Started,
		Metadata:        metadata,
	}
}

// encodeLine renders v as one newline-terminated JSON line.
func encodeLine(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Stream writes the result stream, one JSON object per line.
type Stream struct {
	mu      sync.Mutex
	w       io.Writer
	version string
}

// NewStream writes to w, stamping version into the header.
func NewStream(w io.Writer, version string) *Stream {
	return &Stream{w: w, version: version}
}

func (s *Stream) write(kind string, v any) error {
	line, err := encodeLine(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	return nil
}

func (s *Stream) Header(_ context.Context, info engine.RunInfo) error {
	return s.write("header", HeaderFor(info, s.version))
}

func (s *Stream) Case(_ context.Context, sc cases.SeqCase) error {
	return s.write("case", sc)
}

func (s *Stream) Result(_ context.Context, r result.SeqResult) error {
	return s.write("result", r)
}

func (s *Stream) Summary(_ context.Context, sum engine.Summary) error {
	return s.write("summary", sum)
}

// Collector assembles the run into a report.Report in memory.
type Collector struct {
	mu      sync.Mutex
	builder *report.Builder
	version string
}

// NewCollector starts an empty collector.
func NewCollector(version string) *Collector {
	return &Collector{builder: report.NewBuilder(), version: version}
}

func (c *Collector) Header(_ context.Context, info engine.RunInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builder.SetHeader(HeaderFor(info, c.version))
	return nil
}

func (c *Collector) Case(_ context.Context, sc cases.SeqCase) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builder.AddCase(sc)
}

func (c *Collector) Result(_ context.Context, r result.SeqResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builder.AddResult(r)
}

func (c *Collector) Summary(_ context.Context, sum engine.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builder.SetSummary(sum)
	return nil
}

// Report returns the assembled run. It fails if no header was seen.
func (c *Collector) Report() (*report.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builder.Report()
}

// Multi delivers every event to each reporter in order. All reporters see
// every event; their errors are joined.
type Multi []engine.Reporter

func (m Multi) each(fn func(engine.Reporter) error) error {
	var errs []error
	for _, r := range m {
		if err := fn(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Header(ctx context.Context, info engine.RunInfo) error {
	return m.each(func(r engine.Reporter) error { return r.Header(ctx, info) })
}

func (m Multi) Case(ctx context.Context, sc cases.SeqCase) error {
	return m.each(func(r engine.Reporter) error { return r.Case(ctx, sc) })
}

func (m Multi) Result(ctx context.Context, res result.SeqResult) error {
	return m.each(func(r engine.Reporter) error { return r.Result(ctx, res) })
}

func (m Multi) Summary(ctx context.Context, s engine.Summary) error {
	return m.each(func(r engine.Reporter) error { return r.Summary(ctx, s) })
}
