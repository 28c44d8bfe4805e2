// Package cases defines the test cases bowtie feeds to implementations.
//
// A TestCase is one schema plus an ordered list of instances. Cases are
// immutable once constructed; derived views (such as the one with expected
// results hidden) are fresh copies.
package cases

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"maps"
)

// Seq names one dispatched case within a run. Assigned by the orchestrator,
// starting at 1, never reused.
type Seq int64

// Test is a single instance checked against the enclosing case's schema.
type Test struct {
	Description string          `json:"description"`
	Comment     string          `json:"comment,omitempty"`
	Instance    json.RawMessage `json:"instance"`

	// Valid is the expected verdict; nil means unknown.
	Valid *bool `json:"valid,omitempty"`
}

// TestCase is a schema, optional referenced schemas, and its tests.
type TestCase struct {
	Description string                     `json:"description"`
	Comment     string                     `json:"comment,omitempty"`
	Schema      json.RawMessage            `json:"schema"`
	Registry    map[string]json.RawMessage `json:"registry,omitempty"`
	Tests       []Test                     `json:"tests"`
}

// Validate checks the structural requirements every dispatched case must meet.
func (c TestCase) Validate() error {
	if len(c.Schema) == 0 {
		return errors.New("case has no schema")
	}
	if len(c.Tests) == 0 {
		return fmt.Errorf("case %q has no tests", c.Description)
	}
	for i, t := range c.Tests {
		if len(t.Instance) == 0 {
			return fmt.Errorf("case %q: test %d has no instance", c.Description, i)
		}
	}
	return nil
}

// Expected returns the expected validity of each test, positionally.
func (c TestCase) Expected() []*bool {
	out := make([]*bool, len(c.Tests))
	for i, t := range c.Tests {
		if t.Valid != nil {
			v := *t.Valid
			out[i] = &v
		}
	}
	return out
}

// WithoutExpectedResults returns a copy with every test's Valid cleared, so
// expected answers are not leaked to implementations.
func (c TestCase) WithoutExpectedResults() TestCase {
	out := c
	out.Registry = maps.Clone(c.Registry)
	out.Tests = make([]Test, len(c.Tests))
	for i, t := range c.Tests {
		t.Valid = nil
		out.Tests[i] = t
	}
	return out
}

// SeqCase pairs a case with the Seq it was dispatched under.
type SeqCase struct {
	Seq  Seq      `json:"seq"`
	Case TestCase `json:"case"`
}

// Valid is a convenience for building expectations.
func Valid(v bool) *bool {
	return &v
}

// Each yields tcs in order, for callers that already hold every case.
func Each(tcs ...TestCase) iter.Seq2[TestCase, error] {
	return func(yield func(TestCase, error) bool) {
		for _, tc := range tcs {
			if !yield(tc, nil) {
				return
			}
		}
	}
}
