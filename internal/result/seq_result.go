package result

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/bowtie/internal/cases"
)

// SeqResult is one implementation's answer for one dispatched case.
//
// Expected is captured at dispatch time, independent of what the
// implementation was shown.
type SeqResult struct {
	Seq            cases.Seq
	Implementation string
	Result         AnyCaseResult
	Expected       []*bool
}

// Unsuccessful compares the result against the captured expectations.
func (r SeqResult) Unsuccessful() Unsuccessful {
	return Classify(r.Result, r.Expected)
}

// Dots renders one glyph per test: "." ok, "F" failed, "E" errored, "S" skipped.
func (r SeqResult) Dots() string {
	var b strings.Builder
	for i := range r.Expected {
		switch o := r.Result.ResultFor(i).(type) {
		case TestResult:
			if r.Expected[i] != nil && *r.Expected[i] != o.Valid {
				b.WriteByte('F')
			} else {
				b.WriteByte('.')
			}
		case SkippedTest:
			b.WriteByte('S')
		case ErroredTest:
			b.WriteByte('E')
		}
	}
	return b.String()
}

type seqResultJSON struct {
	Seq            cases.Seq `json:"seq"`
	Implementation string    `json:"implementation"`
	Expected       []*bool   `json:"expected"`
	caseFields
}

// MarshalJSON flattens the case result fields next to seq/implementation.
func (r SeqResult) MarshalJSON() ([]byte, error) {
	if r.Result == nil {
		return nil, fmt.Errorf("seq %d: nil result", r.Seq)
	}
	fields, err := encodeCase(r.Result)
	if err != nil {
		return nil, err
	}
	expected := r.Expected
	if expected == nil {
		expected = []*bool{}
	}
	return json.Marshal(seqResultJSON{
		Seq:            r.Seq,
		Implementation: r.Implementation,
		Expected:       expected,
		caseFields:     fields,
	})
}

// UnmarshalJSON reverses MarshalJSON using the same classification
// precedence as Decode.
func (r *SeqResult) UnmarshalJSON(data []byte) error {
	var raw seqResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode seq result: %w", err)
	}
	res, err := raw.caseFields.caseResult()
	if err != nil {
		return fmt.Errorf("seq %d: %w", raw.Seq, err)
	}
	*r = SeqResult{
		Seq:            raw.Seq,
		Implementation: raw.Implementation,
		Result:         res,
		Expected:       raw.Expected,
	}
	return nil
}
