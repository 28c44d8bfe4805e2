// Package report reassembles a run from the reporter's JSON lines and
// compares runs.
//
// Lines come in four shapes, told apart by their keys:
//
//	{"implementations": {...}, "dialect": ..., ...}   header, first line
//	{"seq": 1, "case": {...}}                          a dispatched case
//	{"seq": 1, "implementation": "...", ...}           one implementation's result
//	{"did_fail_fast": false, "cases": 3, ...}          summary, last line
//
// Results may arrive in any order relative to each other, but always after
// the case they belong to.
package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/roach88/bowtie/internal/cases"
	"github.com/roach88/bowtie/internal/engine"
	"github.com/roach88/bowtie/internal/protocol"
	"github.com/roach88/bowtie/internal/result"
)

// Header is the first line of a report.
type Header struct {
	Implementations map[string]protocol.Implementation `json:"implementations"`
	Dialect         string                             `json:"dialect"`
	BowtieVersion   string                             `json:"bowtie_version"`
	RunID           string                             `json:"run_id"`
	Started         time.Time                          `json:"started"`
	Metadata        map[string]any                     `json:"metadata"`
}

// CaseReport is one case together with every implementation's answer.
type CaseReport struct {
	Case    cases.TestCase
	Results map[string]result.SeqResult
}

// Report is a whole run.
type Report struct {
	Header  Header
	Cases   map[cases.Seq]*CaseReport
	Summary *engine.Summary
}

// Errors returned while building a report.
var (
	ErrNoHeader        = errors.New("report has no header")
	ErrUnknownLine     = errors.New("unrecognized report line")
	ErrDuplicateSeq    = errors.New("seq reported twice")
	ErrDuplicateResult = errors.New("implementation reported twice for one seq")
	ErrUnknownSeq      = errors.New("result for a seq with no case")
)

// Builder assembles a Report one line at a time.
type Builder struct {
	report    Report
	hasHeader bool
}

// NewBuilder starts an empty report.
func NewBuilder() *Builder {
	return &Builder{report: Report{Cases: make(map[cases.Seq]*CaseReport)}}
}

type lineProbe struct {
	Implementations json.RawMessage `json:"implementations"`
	Case            json.RawMessage `json:"case"`
	Implementation  *string         `json:"implementation"`
	DidFailFast     *bool           `json:"did_fail_fast"`
}

// Add consumes one line.
func (b *Builder) Add(line []byte) error {
	var probe lineProbe
	if err := json.Unmarshal(line, &probe); err != nil {
		return fmt.Errorf("decode report line: %w", err)
	}

	switch {
	case probe.Implementations != nil:
		var h Header
		if err := json.Unmarshal(line, &h); err != nil {
			return fmt.Errorf("decode header: %w", err)
		}
		b.report.Header = h
		b.hasHeader = true
		return nil
	case !b.hasHeader:
		return ErrNoHeader
	case probe.Case != nil:
		var sc cases.SeqCase
		if err := json.Unmarshal(line, &sc); err != nil {
			return fmt.Errorf("decode case: %w", err)
		}
		return b.AddCase(sc)
	case probe.Implementation != nil:
		var sr result.SeqResult
		if err := json.Unmarshal(line, &sr); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		return b.AddResult(sr)
	case probe.DidFailFast != nil:
		var s engine.Summary
		if err := json.Unmarshal(line, &s); err != nil {
			return fmt.Errorf("decode summary: %w", err)
		}
		b.report.Summary = &s
		return nil
	default:
		return fmt.Errorf("%w: %.80s", ErrUnknownLine, line)
	}
}

// SetHeader records the header directly, without a JSON round trip.
func (b *Builder) SetHeader(h Header) {
	b.report.Header = h
	b.hasHeader = true
}

// AddCase records a dispatched case.
func (b *Builder) AddCase(sc cases.SeqCase) error {
	if _, ok := b.report.Cases[sc.Seq]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateSeq, sc.Seq)
	}
	b.report.Cases[sc.Seq] = &CaseReport{Case: sc.Case, Results: make(map[string]result.SeqResult)}
	return nil
}

// AddResult records one implementation's answer for an already-added case.
func (b *Builder) AddResult(sr result.SeqResult) error {
	cr, ok := b.report.Cases[sr.Seq]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSeq, sr.Seq)
	}
	if _, ok := cr.Results[sr.Implementation]; ok {
		return fmt.Errorf("%w: %s at seq %d", ErrDuplicateResult, sr.Implementation, sr.Seq)
	}
	cr.Results[sr.Implementation] = sr
	return nil
}

// SetSummary records the terminal summary.
func (b *Builder) SetSummary(s engine.Summary) {
	b.report.Summary = &s
}

// Report returns what has been assembled so far.
func (b *Builder) Report() (*Report, error) {
	if !b.hasHeader {
		return nil, ErrNoHeader
	}
	r := b.report
	return &r, nil
}

// Read builds a report from a stream of lines. Blank lines are ignored.
func Read(r io.Reader) (*Report, error) {
	b := NewBuilder()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := b.Add(line); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	return b.Report()
}

// Implementations returns the implementation ids in the header, sorted.
func (r *Report) Implementations() []string {
	return slices.Sorted(maps.Keys(r.Header.Implementations))
}

// Seqs returns every case's seq, ascending.
func (r *Report) Seqs() []cases.Seq {
	return slices.Sorted(maps.Keys(r.Cases))
}

// Totals sums unsuccessful counts per implementation.
func (r *Report) Totals() map[string]result.Unsuccessful {
	out := make(map[string]result.Unsuccessful, len(r.Header.Implementations))
	for id := range r.Header.Implementations {
		out[id] = result.Unsuccessful{}
	}
	for _, cr := range r.Cases {
		for id, sr := range cr.Results {
			out[id] = out[id].Add(sr.Unsuccessful())
		}
	}
	return out
}
