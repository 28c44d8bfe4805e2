package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bowtie/internal/cases"
	"github.com/roach88/bowtie/internal/dialect"
	"github.com/roach88/bowtie/internal/engine"
	"github.com/roach88/bowtie/internal/protocol"
	"github.com/roach88/bowtie/internal/report"
	"github.com/roach88/bowtie/internal/result"
	"github.com/roach88/bowtie/internal/testutil"
)

func runInfo(t *testing.T) engine.RunInfo {
	t.Helper()
	d, err := dialect.Lookup("2020-12")
	require.NoError(t, err)
	return engine.RunInfo{
		RunID:   "run-1",
		Started: testutil.Epoch,
		Dialect: d,
		Implementations: map[string]protocol.Implementation{
			"go-fake": {Name: "fake", Language: "go", Dialects: []string{d.URI}},
		},
	}
}

// replay drives r through a fixed two-case run: one failed test, one crash.
func replay(t *testing.T, r engine.Reporter) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, r.Header(ctx, runInfo(t)))

	first := cases.TestCase{
		Description: "integers",
		Schema:      json.RawMessage(`{"type": "integer"}`),
		Tests: []cases.Test{
			{Description: "one", Instance: json.RawMessage(`1`), Valid: cases.Valid(true)},
			{Description: "str", Instance: json.RawMessage(`"x"`), Valid: cases.Valid(false)},
		},
	}
	require.NoError(t, r.Case(ctx, cases.SeqCase{Seq: 1, Case: first}))
	require.NoError(t, r.Result(ctx, result.SeqResult{
		Seq:            1,
		Implementation: "go-fake",
		Result:         result.CaseResult{Results: []result.TestOutcome{result.TestResult{Valid: true}, result.TestResult{Valid: true}}},
		Expected:       first.Expected(),
	}))

	second := cases.TestCase{
		Description: "crash",
		Schema:      json.RawMessage(`{}`),
		Tests:       []cases.Test{{Description: "any", Instance: json.RawMessage(`null`)}},
	}
	require.NoError(t, r.Case(ctx, cases.SeqCase{Seq: 2, Case: second}))
	require.NoError(t, r.Result(ctx, result.SeqResult{
		Seq:            2,
		Implementation: "go-fake",
		Result:         result.Uncaught("implementation crashed", map[string]any{"stderr": "boom"}),
		Expected:       second.Expected(),
	}))

	require.NoError(t, r.Summary(ctx, engine.Summary{
		Cases:        2,
		Unsuccessful: result.Unsuccessful{Failed: 1, Errored: 1},
	}))
}

func TestStream_Golden(t *testing.T) {
	var buf bytes.Buffer
	replay(t, NewStream(&buf, "1.2.3"))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "stream", buf.Bytes())
}

func TestStream_ReadsBackIntoSameReport(t *testing.T) {
	var buf bytes.Buffer
	collector := NewCollector("1.2.3")
	replay(t, Multi{NewStream(&buf, "1.2.3"), collector})

	fromStream, err := report.Read(&buf)
	require.NoError(t, err)
	fromCollector, err := collector.Report()
	require.NoError(t, err)

	eq, err := report.Equal(fromStream, fromCollector)
	require.NoError(t, err)
	assert.True(t, eq)
	assert.Equal(t, "run-1", fromStream.Header.RunID)
	assert.Equal(t, "1.2.3", fromStream.Header.BowtieVersion)
	require.NotNil(t, fromCollector.Summary)
	assert.Equal(t, 2, fromCollector.Summary.Cases)
}

func TestStream_DoesNotEscapeHTML(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, "v")
	require.NoError(t, s.Case(context.Background(), cases.SeqCase{Seq: 1, Case: cases.TestCase{
		Description: "a <b> & c",
		Schema:      json.RawMessage(`true`),
		Tests:       []cases.Test{{Description: "t", Instance: json.RawMessage(`1`)}},
	}}))
	assert.Contains(t, buf.String(), `"a <b> & c"`)
	assert.True(t, strings.HasSuffix(buf.String(), "}\n"))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestStream_WriteError(t *testing.T) {
	err := NewStream(failingWriter{}, "v").Summary(context.Background(), engine.Summary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write summary")
}

func TestCollector_NeedsHeader(t *testing.T) {
	c := NewCollector("v")
	_, err := c.Report()
	assert.ErrorIs(t, err, report.ErrNoHeader)
}

type countingReporter struct {
	events int
	err    error
}

func (c *countingReporter) Header(context.Context, engine.RunInfo) error {
	c.events++
	return c.err
}

func (c *countingReporter) Case(context.Context, cases.SeqCase) error {
	c.events++
	return c.err
}

func (c *countingReporter) Result(context.Context, result.SeqResult) error {
	c.events++
	return c.err
}

func (c *countingReporter) Summary(context.Context, engine.Summary) error {
	c.events++
	return c.err
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	broken := &countingReporter{err: errors.New("broken sink")}
	healthy := &countingReporter{}

	err := Multi{broken, healthy}.Summary(context.Background(), engine.Summary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken sink")
	assert.Equal(t, 1, broken.events)
	assert.Equal(t, 1, healthy.events)
}

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestNewMirrorValidation(t *testing.T) {
	_, err := NewMirror(MirrorConfig{}, "v")
	assert.Error(t, err)
	_, err = NewMirror(MirrorConfig{Brokers: []string{"localhost:9092"}}, "v")
	assert.Error(t, err)

	m, err := NewMirror(MirrorConfig{Brokers: []string{"localhost:9092"}, Topic: "bowtie"}, "v")
	require.NoError(t, err)
	assert.NoError(t, m.Close())
}

func TestMirror_PublishesSameLinesAsStream(t *testing.T) {
	writer := &fakeWriter{}
	mirror := newMirror(writer, "1.2.3")
	mirror.now = testutil.NewFixedClock(testutil.Epoch).Now
	replay(t, mirror)

	var buf bytes.Buffer
	replay(t, NewStream(&buf, "1.2.3"))
	want := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")

	require.Len(t, writer.messages, len(want))
	kinds := make([]string, len(writer.messages))
	for i, msg := range writer.messages {
		assert.Equal(t, want[i], string(msg.Value))
		assert.Equal(t, "run-1", string(msg.Key))
		assert.Equal(t, testutil.Epoch, msg.Time)
		require.Len(t, msg.Headers, 1)
		kinds[i] = string(msg.Headers[0].Value)
	}
	assert.Equal(t, []string{"header", "case", "result", "case", "result", "summary"}, kinds)

	require.NoError(t, mirror.Close())
	assert.True(t, writer.closed)
}

func TestMirror_WriteError(t *testing.T) {
	mirror := newMirror(&fakeWriter{err: errors.New("no brokers")}, "v")
	err := mirror.Case(context.Background(), cases.SeqCase{Seq: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mirror case")
}
