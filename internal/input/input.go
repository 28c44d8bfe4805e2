// Package input reads test cases from files, standard input and Kafka.
//
// Every reader yields cases lazily as an iter.Seq2 so the orchestrator can
// stop pulling as soon as a run ends. A decoding error is yielded once and
// ends the sequence.
//
// Cases may spell a test's instance as "instance" or, as in the official
// JSON Schema test suite, "data".
package input

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/bowtie/internal/cases"
)

// Format is an input encoding.
type Format string

const (
	JSON  Format = "json"
	JSONL Format = "jsonl"
	YAML  Format = "yaml"
	CUE   Format = "cue"
)

// ErrUnknownFormat is returned for file extensions no reader handles.
var ErrUnknownFormat = errors.New("unknown input format")

// FormatFor picks a format from a file name. "-" means standard input,
// which is read as JSONL.
func FormatFor(path string) (Format, error) {
	if path == "-" {
		return JSONL, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, nil
	case ".jsonl", ".ndjson":
		return JSONL, nil
	case ".yaml", ".yml":
		return YAML, nil
	case ".cue":
		return CUE, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

type wireTest struct {
	Description string          `json:"description"`
	Comment     string          `json:"comment,omitempty"`
	Instance    json.RawMessage `json:"instance"`
	Data        json.RawMessage `json:"data"`
	Valid       *bool           `json:"valid"`
}

type wireCase struct {
	Description string                     `json:"description"`
	Comment     string                     `json:"comment,omitempty"`
	Schema      json.RawMessage            `json:"schema"`
	Registry    map[string]json.RawMessage `json:"registry,omitempty"`
	Tests       []wireTest                 `json:"tests"`
}

func (w wireCase) testCase() cases.TestCase {
	tc := cases.TestCase{
		Description: w.Description,
		Comment:     w.Comment,
		Schema:      w.Schema,
		Registry:    w.Registry,
		Tests:       make([]cases.Test, len(w.Tests)),
	}
	for i, t := range w.Tests {
		instance := t.Instance
		if instance == nil {
			instance = t.Data
		}
		tc.Tests[i] = cases.Test{
			Description: t.Description,
			Comment:     t.Comment,
			Instance:    instance,
			Valid:       t.Valid,
		}
	}
	return tc
}

// DecodeCase decodes one case object.
func DecodeCase(data []byte) (cases.TestCase, error) {
	var w wireCase
	if err := json.Unmarshal(data, &w); err != nil {
		return cases.TestCase{}, fmt.Errorf("decode case: %w", err)
	}
	return w.testCase(), nil
}

// decodeDocument accepts either one case object or an array of them.
func decodeDocument(data []byte) ([]cases.TestCase, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var ws []wireCase
		if err := json.Unmarshal(trimmed, &ws); err != nil {
			return nil, fmt.Errorf("decode cases: %w", err)
		}
		out := make([]cases.TestCase, len(ws))
		for i, w := range ws {
			out[i] = w.testCase()
		}
		return out, nil
	}
	tc, err := DecodeCase(trimmed)
	if err != nil {
		return nil, err
	}
	return []cases.TestCase{tc}, nil
}

// Read yields the cases encoded in r.
func Read(r io.Reader, f Format) iter.Seq2[cases.TestCase, error] {
	switch f {
	case JSONL:
		return readJSONL(r)
	case JSON:
		return readWhole(r, decodeDocument)
	case YAML:
		return readYAML(r)
	case CUE:
		return readWhole(r, decodeCUE)
	default:
		return fail(fmt.Errorf("%w: %q", ErrUnknownFormat, f))
	}
}

// Open yields the cases in the file at path, or standard input for "-".
func Open(path string) iter.Seq2[cases.TestCase, error] {
	f, err := FormatFor(path)
	if err != nil {
		return fail(err)
	}
	return func(yield func(cases.TestCase, error) bool) {
		var r io.Reader = os.Stdin
		if path != "-" {
			file, err := os.Open(path)
			if err != nil {
				yield(cases.TestCase{}, fmt.Errorf("open input: %w", err))
				return
			}
			defer file.Close()
			r = file
		}
		for tc, err := range Read(r, f) {
			if err != nil {
				err = fmt.Errorf("%s: %w", path, err)
			}
			if !yield(tc, err) || err != nil {
				return
			}
		}
	}
}

// Files chains the cases of several files, in order.
func Files(paths ...string) iter.Seq2[cases.TestCase, error] {
	return func(yield func(cases.TestCase, error) bool) {
		for _, path := range paths {
			for tc, err := range Open(path) {
				if !yield(tc, err) || err != nil {
					return
				}
			}
		}
	}
}

func fail(err error) iter.Seq2[cases.TestCase, error] {
	return func(yield func(cases.TestCase, error) bool) {
		yield(cases.TestCase{}, err)
	}
}

func readJSONL(r io.Reader) iter.Seq2[cases.TestCase, error] {
	return func(yield func(cases.TestCase, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
		n := 0
		for scanner.Scan() {
			n++
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			tc, err := DecodeCase(line)
			if err != nil {
				yield(cases.TestCase{}, fmt.Errorf("line %d: %w", n, err))
				return
			}
			if !yield(tc, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(cases.TestCase{}, fmt.Errorf("read input: %w", err))
		}
	}
}

func readWhole(r io.Reader, decode func([]byte) ([]cases.TestCase, error)) iter.Seq2[cases.TestCase, error] {
	return func(yield func(cases.TestCase, error) bool) {
		data, err := io.ReadAll(r)
		if err != nil {
			yield(cases.TestCase{}, fmt.Errorf("read input: %w", err))
			return
		}
		tcs, err := decode(data)
		if err != nil {
			yield(cases.TestCase{}, err)
			return
		}
		for _, tc := range tcs {
			if !yield(tc, nil) {
				return
			}
		}
	}
}

// readYAML treats every document in the stream as a case or a list of cases.
func readYAML(r io.Reader) iter.Seq2[cases.TestCase, error] {
	return func(yield func(cases.TestCase, error) bool) {
		dec := yaml.NewDecoder(r)
		for doc := 1; ; doc++ {
			var v any
			err := dec.Decode(&v)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(cases.TestCase{}, fmt.Errorf("document %d: decode yaml: %w", doc, err))
				return
			}
			if v == nil {
				continue
			}
			data, err := json.Marshal(v)
			if err != nil {
				yield(cases.TestCase{}, fmt.Errorf("document %d: %w", doc, err))
				return
			}
			tcs, err := decodeDocument(data)
			if err != nil {
				yield(cases.TestCase{}, fmt.Errorf("document %d: %w", doc, err))
				return
			}
			for _, tc := range tcs {
				if !yield(tc, nil) {
					return
				}
			}
		}
	}
}

// decodeCUE evaluates a CUE file and reads its "cases" field, or the whole
// value when there is no such field.
func decodeCUE(src []byte) ([]cases.TestCase, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename("cases.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile cue: %w", err)
	}
	if field := v.LookupPath(cue.ParsePath("cases")); field.Exists() {
		v = field
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("cue value is not concrete: %w", err)
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("export cue: %w", err)
	}
	return decodeDocument(data)
}
