package report

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/roach88/bowtie/internal/result"
)

// Equal reports whether two runs saw the same implementations, the same
// dialect, and the same cases with the same results. Seq numbers, line
// order and tooling metadata (bowtie version, run id, start time, summary)
// do not participate.
func Equal(a, b *Report) (bool, error) {
	ia, err := Canonical(a.Header.Implementations)
	if err != nil {
		return false, err
	}
	ib, err := Canonical(b.Header.Implementations)
	if err != nil {
		return false, err
	}
	if !bytes.Equal(ia, ib) || a.Header.Dialect != b.Header.Dialect {
		return false, nil
	}

	ea, err := a.entries()
	if err != nil {
		return false, err
	}
	eb, err := b.entries()
	if err != nil {
		return false, err
	}
	return slices.Equal(ea, eb), nil
}

// Digest is a SHA-256 over exactly what Equal compares, so two reports
// with equal digests are Equal.
func Digest(r *Report) (string, error) {
	impls, err := Canonical(r.Header.Implementations)
	if err != nil {
		return "", err
	}
	entries, err := r.entries()
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte("bowtie/report/v1\x00"))
	h.Write(impls)
	h.Write([]byte{0})
	h.Write([]byte(r.Header.Dialect))
	for _, e := range entries {
		h.Write([]byte{0})
		h.Write([]byte(e))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// entries renders each case with its results as one canonical string,
// sorted, so the report can be compared as a multiset.
func (r *Report) entries() ([]string, error) {
	out := make([]string, 0, len(r.Cases))
	for seq, cr := range r.Cases {
		key, err := entryKey(cr)
		if err != nil {
			return nil, fmt.Errorf("seq %d: %w", seq, err)
		}
		out = append(out, key)
	}
	slices.Sort(out)
	return out, nil
}

func entryKey(cr *CaseReport) (string, error) {
	results := make(map[string]result.SeqResult, len(cr.Results))
	for id, sr := range cr.Results {
		sr.Seq = 0
		if errored, ok := sr.Result.(result.CaseErrored); ok {
			sr.Result = withoutSeqContext(errored)
		}
		results[id] = sr
	}
	data, err := Canonical(map[string]any{
		"case":    cr.Case,
		"results": results,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// withoutSeqContext drops the context entries that carry seq numbers: the
// raw response line, and the expected/got pair of a seq mismatch.
func withoutSeqContext(e result.CaseErrored) result.CaseErrored {
	_, hasResponse := e.Context["response"]
	mismatch := e.Message() == result.MismatchedSeqMessage
	if !hasResponse && !mismatch {
		return e
	}
	ctx := make(map[string]any, len(e.Context))
	for k, v := range e.Context {
		if k == "response" || (mismatch && (k == "expected" || k == "got")) {
			continue
		}
		ctx[k] = v
	}
	e.Context = ctx
	return e
}

// Difference is one (case, implementation) pair whose outcome changed
// between two runs.
type Difference struct {
	Case           string `json:"case"`
	Implementation string `json:"implementation"`
	Before         string `json:"before"`
	After          string `json:"after"`
}

// Compare lists outcome changes from a to b, matching cases by content
// rather than seq. A missing side renders as "-".
func Compare(a, b *Report) ([]Difference, error) {
	ia, err := a.byContent()
	if err != nil {
		return nil, err
	}
	ib, err := b.byContent()
	if err != nil {
		return nil, err
	}

	keys := make(map[string]bool, len(ia)+len(ib))
	for k := range ia {
		keys[k] = true
	}
	for k := range ib {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	slices.Sort(sorted)

	var diffs []Difference
	for _, k := range sorted {
		before, after := ia[k], ib[k]
		impls := make(map[string]bool)
		var description string
		for _, cr := range []*CaseReport{before, after} {
			if cr == nil {
				continue
			}
			description = cr.Case.Description
			for id := range cr.Results {
				impls[id] = true
			}
		}
		ids := make([]string, 0, len(impls))
		for id := range impls {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			was, now := dots(before, id), dots(after, id)
			if was != now {
				diffs = append(diffs, Difference{Case: description, Implementation: id, Before: was, After: now})
			}
		}
	}
	return diffs, nil
}

func (r *Report) byContent() (map[string]*CaseReport, error) {
	out := make(map[string]*CaseReport, len(r.Cases))
	for seq, cr := range r.Cases {
		key, err := Canonical(cr.Case)
		if err != nil {
			return nil, fmt.Errorf("seq %d: %w", seq, err)
		}
		out[string(key)] = cr
	}
	return out, nil
}

func dots(cr *CaseReport, id string) string {
	if cr == nil {
		return "-"
	}
	sr, ok := cr.Results[id]
	if !ok {
		return "-"
	}
	return sr.Dots()
}
