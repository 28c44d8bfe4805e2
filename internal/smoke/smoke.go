// Package smoke checks that implementations answer the simplest possible
// cases correctly: a schema everything is valid under and one nothing is.
package smoke

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/bowtie/internal/cases"
	"github.com/roach88/bowtie/internal/dialect"
	"github.com/roach88/bowtie/internal/engine"
	"github.com/roach88/bowtie/internal/harness"
	"github.com/roach88/bowtie/internal/reporter"
	"github.com/roach88/bowtie/internal/result"
)

// instances covers every JSON type.
var instances = []struct {
	description string
	instance    string
}{
	{"null", `null`},
	{"boolean", `true`},
	{"integer", `37`},
	{"number", `37.37`},
	{"string", `"37"`},
	{"array", `[37]`},
	{"object", `{"foo": 37}`},
}

// Battery returns the smoke cases for d.
func Battery(d dialect.Dialect) []cases.TestCase {
	return []cases.TestCase{
		battery("allow-everything schema", d.Top(), true),
		battery("allow-nothing schema", d.Bottom(), false),
	}
}

func battery(description string, schema json.RawMessage, valid bool) cases.TestCase {
	tc := cases.TestCase{
		Description: description,
		Schema:      schema,
		Tests:       make([]cases.Test, len(instances)),
	}
	for i, in := range instances {
		tc.Tests[i] = cases.Test{
			Description: in.description,
			Instance:    json.RawMessage(in.instance),
			Valid:       cases.Valid(valid),
		}
	}
	return tc
}

// Verdict is one implementation's smoke outcome.
type Verdict struct {
	Implementation string              `json:"implementation"`
	OK             bool                `json:"ok"`
	Dots           string              `json:"dots,omitempty"`
	Unsuccessful   result.Unsuccessful `json:"unsuccessful"`
	StartError     string              `json:"start_error,omitempty"`
}

// Result is the outcome of a smoke run.
type Result struct {
	Dialect  string    `json:"dialect"`
	Verdicts []Verdict `json:"verdicts"`
}

// OK reports whether every implementation passed.
func (r Result) OK() bool {
	for _, v := range r.Verdicts {
		if !v.OK {
			return false
		}
	}
	return len(r.Verdicts) > 0
}

// Run smoke tests conns under d. Implementations that fail to start get a
// failing verdict rather than an error.
func Run(ctx context.Context, d dialect.Dialect, conns []harness.Connectable, cfg harness.Config, logger *slog.Logger) (Result, error) {
	collector := reporter.NewCollector("")
	eng := engine.New(collector, engine.Options{Dialect: d, Harness: cfg}, logger)

	out := Result{Dialect: d.URI}
	summary, err := eng.Run(ctx, conns, cases.Each(Battery(d)...))
	if err != nil && !engine.IsConfigError(err) {
		return out, err
	}
	for name, reason := range summary.FailedToStart {
		out.Verdicts = append(out.Verdicts, Verdict{Implementation: name, StartError: reason})
	}

	rep, repErr := collector.Report()
	if repErr == nil {
		totals := rep.Totals()
		for _, id := range rep.Implementations() {
			v := Verdict{Implementation: id, Unsuccessful: totals[id]}
			for _, seq := range rep.Seqs() {
				if sr, ok := rep.Cases[seq].Results[id]; ok {
					v.Dots += sr.Dots()
				}
			}
			v.OK = v.Unsuccessful.IsZero()
			out.Verdicts = append(out.Verdicts, v)
		}
	} else if len(out.Verdicts) == 0 {
		if err == nil {
			err = repErr
		}
		return out, fmt.Errorf("smoke: %w", err)
	}

	slices.SortFunc(out.Verdicts, func(a, b Verdict) int {
		return cmp.Compare(a.Implementation, b.Implementation)
	})
	return out, nil
}

// Failed lists implementations that did not pass, in verdict order.
func (r Result) Failed() []string {
	var failed []string
	for _, v := range r.Verdicts {
		if !v.OK {
			failed = append(failed, v.Implementation)
		}
	}
	return failed
}

// Text renders the result for a terminal.
func (r Result) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "dialect: %s\n", r.Dialect)
	for _, v := range r.Verdicts {
		switch {
		case v.StartError != "":
			fmt.Fprintf(&b, "  ✗ %s: failed to start: %s\n", v.Implementation, v.StartError)
		case v.OK:
			fmt.Fprintf(&b, "  ✓ %s %s\n", v.Implementation, v.Dots)
		default:
			fmt.Fprintf(&b, "  ✗ %s %s (failed %d, errored %d, skipped %d)\n",
				v.Implementation, v.Dots, v.Unsuccessful.Failed, v.Unsuccessful.Errored, v.Unsuccessful.Skipped)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
