package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/roach88/bowtie/internal/cases"
	"github.com/roach88/bowtie/internal/engine"
	"github.com/roach88/bowtie/internal/protocol"
	"github.com/roach88/bowtie/internal/report"
	"github.com/roach88/bowtie/internal/result"
	"github.com/roach88/bowtie/internal/testutil"
)

const testDialect = "https://json-schema.org/draft/2020-12/schema"

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestReport builds a two-implementation, two-case run.
func createTestReport(t *testing.T, runID string) *report.Report {
	t.Helper()
	b := report.NewBuilder()
	b.SetHeader(report.Header{
		Implementations: map[string]protocol.Implementation{
			"go-a": {Name: "a", Language: "go", Dialects: []string{testDialect}},
			"go-b": {Name: "b", Language: "go", Dialects: []string{testDialect}},
		},
		Dialect:       testDialect,
		BowtieVersion: "0.1.0",
		RunID:         runID,
		Started:       testutil.Epoch,
		Metadata:      map[string]any{"ci": true},
	})

	integers := cases.TestCase{
		Description: "integers",
		Schema:      json.RawMessage(`{"type":"integer"}`),
		Tests: []cases.Test{
			{Description: "one", Instance: json.RawMessage(`1`), Valid: cases.Valid(true)},
			{Description: "str", Instance: json.RawMessage(`"x"`), Valid: cases.Valid(false)},
		},
	}
	mustAdd(t, b.AddCase(cases.SeqCase{Seq: 1, Case: integers}))
	mustAdd(t, b.AddResult(result.SeqResult{
		Seq: 1, Implementation: "go-a", Expected: integers.Expected(),
		Result: result.CaseResult{Results: []result.TestOutcome{result.TestResult{Valid: true}, result.TestResult{Valid: false}}},
	}))
	mustAdd(t, b.AddResult(result.SeqResult{
		Seq: 1, Implementation: "go-b", Expected: integers.Expected(),
		Result: result.CaseSkipped{Message: "unsupported", IssueURL: "https://example.com/1"},
	}))

	refs := cases.TestCase{
		Description: "refs",
		Schema:      json.RawMessage(`{"$ref":"urn:example:int"}`),
		Registry:    map[string]json.RawMessage{"urn:example:int": json.RawMessage(`{"type":"integer"}`)},
		Tests:       []cases.Test{{Description: "two", Instance: json.RawMessage(`2`), Valid: cases.Valid(true)}},
	}
	mustAdd(t, b.AddCase(cases.SeqCase{Seq: 2, Case: refs}))
	mustAdd(t, b.AddResult(result.SeqResult{
		Seq: 2, Implementation: "go-a", Expected: refs.Expected(),
		Result: result.Uncaught("implementation crashed", map[string]any{"stderr": "boom"}),
	}))
	mustAdd(t, b.AddResult(result.SeqResult{
		Seq: 2, Implementation: "go-b", Expected: refs.Expected(),
		Result: result.Empty{},
	}))

	b.SetSummary(engine.Summary{Cases: 2, Unsuccessful: result.Unsuccessful{Errored: 2, Skipped: 2}})

	r, err := b.Report()
	if err != nil {
		t.Fatalf("Report() failed: %v", err)
	}
	return r
}

func mustAdd(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
}
