// Package result models what an implementation returned for one case.
//
// Two closed unions live here. AnyCaseResult is the case-level outcome
// (CaseResult, CaseErrored, CaseSkipped, Empty); TestOutcome is the
// per-test outcome inside a CaseResult (TestResult, SkippedTest,
// ErroredTest). Both are sealed with unexported marker methods so the only
// place that switches over raw wire data is Decode.
package result

import (
	"fmt"
)

// TestOutcome is the outcome for a single test within a case.
type TestOutcome interface {
	testOutcome()
}

// TestResult is a plain verdict.
type TestResult struct {
	Valid bool
}

// SkippedTest means the implementation declined to run the test.
type SkippedTest struct {
	Message  string
	IssueURL string
}

// ErroredTest means the implementation failed while running the test.
type ErroredTest struct {
	Context map[string]any
}

func (TestResult) testOutcome()  {}
func (SkippedTest) testOutcome() {}
func (ErroredTest) testOutcome() {}

// Message returns context["message"] when present.
func (e ErroredTest) Message() string {
	return messageOf(e.Context)
}

// AnyCaseResult is everything an implementation can answer for one case.
type AnyCaseResult interface {
	caseResult()

	// ResultFor returns the outcome for the i'th test. Case-level errors and
	// skips synthesize one pseudo-outcome per test.
	ResultFor(i int) TestOutcome
}

// CaseResult holds one outcome per test, positionally aligned.
type CaseResult struct {
	Results []TestOutcome
}

// CaseErrored means the whole case errored. Caught is false when bowtie
// itself detected the failure (crash, stderr, protocol violation).
type CaseErrored struct {
	Context map[string]any
	Caught  bool
}

// CaseSkipped means the whole case was skipped.
type CaseSkipped struct {
	Message  string
	IssueURL string
}

// Empty means no response arrived at all.
type Empty struct{}

func (CaseResult) caseResult()  {}
func (CaseErrored) caseResult() {}
func (CaseSkipped) caseResult() {}
func (Empty) caseResult()       {}

func (r CaseResult) ResultFor(i int) TestOutcome {
	if i < 0 || i >= len(r.Results) {
		return ErroredTest{Context: map[string]any{
			"message": fmt.Sprintf("no result for test %d", i),
		}}
	}
	return r.Results[i]
}

func (r CaseErrored) ResultFor(int) TestOutcome {
	return ErroredTest{Context: r.Context}
}

func (r CaseSkipped) ResultFor(int) TestOutcome {
	return SkippedTest{Message: r.Message, IssueURL: r.IssueURL}
}

func (Empty) ResultFor(int) TestOutcome {
	return ErroredTest{Context: map[string]any{"message": "no response"}}
}

// Message returns context["message"] when present.
func (r CaseErrored) Message() string {
	return messageOf(r.Context)
}

// Uncaught builds a CaseErrored for a failure bowtie detected itself.
// Extra entries are merged into the context next to the message.
func Uncaught(message string, extra map[string]any) CaseErrored {
	ctx := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		ctx[k] = v
	}
	ctx["message"] = message
	return CaseErrored{Context: ctx, Caught: false}
}

// MismatchedSeqMessage is the message of the errored outcome recorded when
// a response answers a different seq than the one asked.
const MismatchedSeqMessage = "mismatched seq"

// BackingOffMessage is the message of the synthetic outcome returned for a
// harness that exhausted its restart budget.
const BackingOffMessage = "backing off"

// BackingOff is the outcome for harnesses that will not be restarted again.
func BackingOff() CaseErrored {
	return Uncaught(BackingOffMessage, nil)
}

// IsBackingOff reports whether r is the synthetic backing-off outcome.
func IsBackingOff(r AnyCaseResult) bool {
	e, ok := r.(CaseErrored)
	return ok && !e.Caught && e.Message() == BackingOffMessage
}

func messageOf(ctx map[string]any) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx["message"].(string)
	return s
}

// Classify counts unsuccessful outcomes of r against expected.
// Unknown expectations (nil) never count as failures.
func Classify(r AnyCaseResult, expected []*bool) Unsuccessful {
	var u Unsuccessful
	for i := range expected {
		switch outcome := r.ResultFor(i).(type) {
		case TestResult:
			if expected[i] != nil && *expected[i] != outcome.Valid {
				u.Failed++
			}
		case SkippedTest:
			u.Skipped++
		case ErroredTest:
			u.Errored++
		}
	}
	return u
}
