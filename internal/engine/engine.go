package engine

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/bowtie/internal/cases"
	"github.com/roach88/bowtie/internal/dialect"
	"github.com/roach88/bowtie/internal/harness"
	"github.com/roach88/bowtie/internal/protocol"
	"github.com/roach88/bowtie/internal/result"
)

// Reporter receives everything a run produces, in order: one header, then
// for each case its Case event followed by that case's results, then one
// summary.
type Reporter interface {
	Header(ctx context.Context, info RunInfo) error
	Case(ctx context.Context, sc cases.SeqCase) error
	Result(ctx context.Context, r result.SeqResult) error
	Summary(ctx context.Context, s Summary) error
}

// RunInfo describes a run once its implementations are up.
type RunInfo struct {
	RunID           string
	Started         time.Time
	Dialect         dialect.Dialect
	Implementations map[string]protocol.Implementation
	Metadata        map[string]any
}

// Summary is reported when a run ends, however it ends.
type Summary struct {
	Cases        int                 `json:"cases"`
	DidFailFast  bool                `json:"did_fail_fast"`
	Unsuccessful result.Unsuccessful `json:"unsuccessful"`

	// FailedToStart maps connectable names to their startup error.
	FailedToStart map[string]string `json:"failed_to_start,omitempty"`

	// ProtocolViolations counts responses that broke the protocol.
	ProtocolViolations int `json:"protocol_violations,omitempty"`
}

// Degraded reports whether some implementation could not take part.
func (s Summary) Degraded() bool {
	return len(s.FailedToStart) > 0
}

// Options configure a run.
type Options struct {
	Dialect dialect.Dialect
	Stop    StopPolicy

	// ShowExpected sends expected results to implementations instead of
	// stripping them.
	ShowExpected bool

	// Filter, when set, drops cases for which it returns false.
	Filter func(cases.TestCase) bool

	// MaxCases bounds how many cases are dispatched; zero means no bound.
	MaxCases int

	// RequireAllStarted aborts the run if any implementation fails to start.
	RequireAllStarted bool

	// Metadata is copied into the report header.
	Metadata map[string]any

	Harness harness.Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunIDGenerator replaces the UUIDv7 run id generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) { e.runIDs = g }
}

// WithNow replaces the wall clock used for the header's start time.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine runs cases against implementations.
type Engine struct {
	opts     Options
	reporter Reporter
	logger   *slog.Logger
	clock    *Clock
	runIDs   RunIDGenerator
	now      func() time.Time
}

// New creates an Engine. A nil logger discards output.
func New(reporter Reporter, opts Options, logger *slog.Logger, options ...Option) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Engine{
		opts:     opts,
		reporter: reporter,
		logger:   logger,
		clock:    NewClock(),
		runIDs:   UUIDv7Generator{},
		now:      time.Now,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Run executes one run. The returned Summary is meaningful even alongside
// an error, except for errors raised before any implementation started.
func (e *Engine) Run(ctx context.Context, conns []harness.Connectable, input iter.Seq2[cases.TestCase, error]) (Summary, error) {
	var summary Summary

	if err := e.opts.Stop.Validate(); err != nil {
		return summary, err
	}
	if e.opts.MaxCases < 0 {
		return summary, NewConfigError("--max-cases must not be negative", nil)
	}
	if len(conns) == 0 {
		return summary, NewConfigError("no implementations given", nil)
	}
	if e.opts.Dialect.URI == "" {
		return summary, NewConfigError("no dialect given", nil)
	}

	harnesses := make([]*harness.Harness, len(conns))
	for i, conn := range conns {
		harnesses[i] = harness.New(conn, e.opts.Harness, e.logger)
	}
	defer e.teardown(ctx, harnesses)

	live, failures := e.startAll(ctx, harnesses)
	summary.FailedToStart = failures
	if len(live) == 0 {
		return summary, NewConfigError("no implementation started", nil)
	}
	if e.opts.RequireAllStarted && len(failures) > 0 {
		return summary, NewConfigError(fmt.Sprintf("%d implementation(s) failed to start", len(failures)), nil)
	}

	info := RunInfo{
		RunID:           e.runIDs.Generate(),
		Started:         e.now().UTC(),
		Dialect:         e.opts.Dialect,
		Implementations: make(map[string]protocol.Implementation, len(live)),
		Metadata:        e.opts.Metadata,
	}
	for _, h := range live {
		info.Implementations[h.Name()] = h.Implementation()
	}
	if err := e.reporter.Header(ctx, info); err != nil {
		return summary, fmt.Errorf("report header: %w", err)
	}

	runErr := e.loop(ctx, live, input, &summary)

	for _, h := range live {
		summary.ProtocolViolations += h.Violations()
	}
	if err := e.reporter.Summary(ctx, summary); err != nil && runErr == nil {
		runErr = fmt.Errorf("report summary: %w", err)
	}
	if runErr != nil {
		return summary, runErr
	}
	if summary.Cases == 0 {
		return summary, &RunError{Code: ErrCodeNoInput, Message: "nothing to do", Err: ErrNoInput}
	}
	return summary, nil
}

func (e *Engine) loop(ctx context.Context, live []*harness.Harness, input iter.Seq2[cases.TestCase, error], summary *Summary) error {
	for tc, err := range input {
		if err != nil {
			return NewDataError("invalid input", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.opts.Filter != nil && !e.opts.Filter(tc) {
			continue
		}
		if err := tc.Validate(); err != nil {
			return NewDataError(fmt.Sprintf("invalid case %q", tc.Description), err)
		}
		if e.opts.MaxCases > 0 && summary.Cases >= e.opts.MaxCases {
			return nil
		}

		sc := cases.SeqCase{Seq: e.clock.Next(), Case: tc}
		if err := e.reporter.Case(ctx, sc); err != nil {
			return fmt.Errorf("report case %d: %w", sc.Seq, err)
		}

		unsuccessful, err := e.dispatch(ctx, live, sc)
		summary.Cases++
		summary.Unsuccessful = summary.Unsuccessful.Add(unsuccessful)
		if err != nil {
			return err
		}

		if e.opts.Stop.ShouldStop(unsuccessful, summary.Unsuccessful) {
			summary.DidFailFast = true
			e.logger.Info("stopping early",
				"seq", sc.Seq,
				"unsuccessful", summary.Unsuccessful.StopCount(),
			)
			return nil
		}
		if allBackingOff(live) {
			return NewConfigError("every implementation is backing off", nil)
		}
	}
	return nil
}

// startAll starts every harness concurrently and splits them into the
// ones that came up and a name → error map of the ones that did not.
func (e *Engine) startAll(ctx context.Context, harnesses []*harness.Harness) ([]*harness.Harness, map[string]string) {
	errs := make([]error, len(harnesses))
	var wg sync.WaitGroup
	for i, h := range harnesses {
		wg.Go(func() {
			errs[i] = h.Start(ctx, e.opts.Dialect)
		})
	}
	wg.Wait()

	var live []*harness.Harness
	var failures map[string]string
	seen := make(map[string]bool, len(harnesses))
	for i, h := range harnesses {
		err := errs[i]
		if err == nil && seen[h.Name()] {
			err = fmt.Errorf("%s given more than once", h.Name())
			h.Close()
		}
		if err != nil {
			e.logger.Error("implementation failed to start", "implementation", h.Name(), "error", err)
			if failures == nil {
				failures = make(map[string]string)
			}
			failures[h.Name()] = err.Error()
			continue
		}
		seen[h.Name()] = true
		live = append(live, h)
	}
	return live, failures
}

// dispatch sends sc to every live harness at once and reports results as
// they arrive. It returns only after every harness has answered.
func (e *Engine) dispatch(ctx context.Context, live []*harness.Harness, sc cases.SeqCase) (result.Unsuccessful, error) {
	expected := sc.Case.Expected()
	sent := sc
	if !e.opts.ShowExpected {
		sent.Case = sc.Case.WithoutExpectedResults()
	}

	results := make(chan result.SeqResult, len(live))
	var wg sync.WaitGroup
	for _, h := range live {
		wg.Go(func() {
			results <- result.SeqResult{
				Seq:            sc.Seq,
				Implementation: h.Name(),
				Result:         h.RunCase(ctx, sent),
				Expected:       expected,
			}
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var total result.Unsuccessful
	var reportErr error
	for sr := range results {
		total = total.Add(sr.Unsuccessful())
		e.logOutcome(sr)
		if reportErr != nil {
			continue
		}
		if err := e.reporter.Result(ctx, sr); err != nil {
			reportErr = fmt.Errorf("report result %d/%s: %w", sr.Seq, sr.Implementation, err)
		}
	}
	return total, reportErr
}

func (e *Engine) logOutcome(sr result.SeqResult) {
	switch r := sr.Result.(type) {
	case result.CaseErrored:
		if r.Caught {
			e.logger.Debug("implementation reported an error",
				"seq", sr.Seq, "implementation", sr.Implementation, "message", r.Message())
			return
		}
		e.logger.Warn("uncaught error",
			"seq", sr.Seq, "implementation", sr.Implementation, "message", r.Message())
	case result.Empty:
		e.logger.Warn("no response", "seq", sr.Seq, "implementation", sr.Implementation)
	}
}

func allBackingOff(live []*harness.Harness) bool {
	for _, h := range live {
		if h.State() != harness.BackingOff {
			return false
		}
	}
	return true
}

// teardown stops and removes every harness. It runs even when ctx is
// cancelled, so cleanup never depends on the caller's deadline.
func (e *Engine) teardown(ctx context.Context, harnesses []*harness.Harness) {
	ctx = context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	for _, h := range harnesses {
		wg.Go(func() {
			h.Stop(ctx)
			h.Close()
		})
	}
	wg.Wait()
}
