package result

import (
	"encoding/json"
	"errors"
	"fmt"
)

// caseFields is the union of fields a case-level payload may carry, both on
// the wire from implementations and in the reporter's result lines.
type caseFields struct {
	Results  []json.RawMessage `json:"results,omitempty"`
	Errored  bool              `json:"errored,omitempty"`
	Skipped  bool              `json:"skipped,omitempty"`
	Caught   *bool             `json:"caught,omitempty"`
	Message  string            `json:"message,omitempty"`
	IssueURL string            `json:"issue_url,omitempty"`
	Context  map[string]any    `json:"context,omitempty"`
}

type testFields struct {
	Valid    *bool          `json:"valid,omitempty"`
	Skipped  bool           `json:"skipped,omitempty"`
	Errored  bool           `json:"errored,omitempty"`
	Message  string         `json:"message,omitempty"`
	IssueURL string         `json:"issue_url,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// ErrNoVerdict is returned when a per-test entry is neither skipped,
// errored, nor carries a valid field.
var ErrNoVerdict = errors.New("test result has no valid, skipped or errored field")

// DecodeTest classifies one per-test entry: skipped beats errored, which
// beats a plain {"valid": bool}.
func DecodeTest(data []byte) (TestOutcome, error) {
	var f testFields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode test result: %w", err)
	}
	return f.outcome()
}

func (f testFields) outcome() (TestOutcome, error) {
	switch {
	case f.Skipped:
		return SkippedTest{Message: f.Message, IssueURL: f.IssueURL}, nil
	case f.Errored:
		return ErroredTest{Context: f.Context}, nil
	case f.Valid != nil:
		return TestResult{Valid: *f.Valid}, nil
	default:
		return nil, ErrNoVerdict
	}
}

func encodeTest(o TestOutcome) testFields {
	switch v := o.(type) {
	case TestResult:
		valid := v.Valid
		return testFields{Valid: &valid}
	case SkippedTest:
		return testFields{Skipped: true, Message: v.Message, IssueURL: v.IssueURL}
	case ErroredTest:
		return testFields{Errored: true, Context: v.Context}
	default:
		panic(fmt.Sprintf("unknown test outcome %T", o))
	}
}

// Decode classifies a case-level payload: skipped beats errored, which
// beats a results list; a payload with none of these is Empty.
func Decode(data []byte) (AnyCaseResult, error) {
	var f caseFields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode case result: %w", err)
	}
	return f.caseResult()
}

func (f caseFields) caseResult() (AnyCaseResult, error) {
	switch {
	case f.Skipped:
		return CaseSkipped{Message: f.Message, IssueURL: f.IssueURL}, nil
	case f.Errored:
		caught := true
		if f.Caught != nil {
			caught = *f.Caught
		}
		return CaseErrored{Context: f.Context, Caught: caught}, nil
	case f.Results != nil:
		out := make([]TestOutcome, len(f.Results))
		for i, raw := range f.Results {
			o, err := DecodeTest(raw)
			if err != nil {
				return nil, fmt.Errorf("result %d: %w", i, err)
			}
			out[i] = o
		}
		return CaseResult{Results: out}, nil
	default:
		return Empty{}, nil
	}
}

func encodeCase(r AnyCaseResult) (caseFields, error) {
	switch v := r.(type) {
	case CaseResult:
		results := make([]json.RawMessage, len(v.Results))
		for i, o := range v.Results {
			data, err := json.Marshal(encodeTest(o))
			if err != nil {
				return caseFields{}, fmt.Errorf("encode result %d: %w", i, err)
			}
			results[i] = data
		}
		return caseFields{Results: results}, nil
	case CaseErrored:
		caught := v.Caught
		return caseFields{Errored: true, Caught: &caught, Context: v.Context}, nil
	case CaseSkipped:
		return caseFields{Skipped: true, Message: v.Message, IssueURL: v.IssueURL}, nil
	case Empty:
		return caseFields{}, nil
	default:
		return caseFields{}, fmt.Errorf("unknown case result %T", r)
	}
}
