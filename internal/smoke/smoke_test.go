package smoke

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bowtie/internal/connectable"
	"github.com/roach88/bowtie/internal/dialect"
	"github.com/roach88/bowtie/internal/direct"
	"github.com/roach88/bowtie/internal/harness"
	"github.com/roach88/bowtie/internal/protocol"
	"github.com/roach88/bowtie/internal/testutil"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() harness.Config {
	cfg := harness.DefaultConfig()
	cfg.ReadTimeout = 50 * time.Millisecond
	return cfg
}

func lookup(t *testing.T, name string) dialect.Dialect {
	t.Helper()
	d, err := dialect.Lookup(name)
	require.NoError(t, err)
	return d
}

// correct answers the battery by looking only at the schema.
func correct(name string) *testutil.FakeConnectable {
	return &testutil.FakeConnectable{Implementation: testutil.FakeImplementation{
		Name: name,
		OnRun: func(run protocol.Run) testutil.Reply {
			return testutil.AllValid(run, string(run.Case.Schema) == "true")
		},
	}}
}

func TestBattery(t *testing.T) {
	d := lookup(t, "2020-12")
	battery := Battery(d)
	require.Len(t, battery, 2)

	assert.JSONEq(t, `true`, string(battery[0].Schema))
	assert.JSONEq(t, `false`, string(battery[1].Schema))
	for _, tc := range battery {
		require.NoError(t, tc.Validate())
		assert.Len(t, tc.Tests, len(instances))
	}
	assert.True(t, *battery[0].Tests[0].Valid)
	assert.False(t, *battery[1].Tests[0].Valid)

	draft4 := Battery(lookup(t, "draft4"))
	assert.JSONEq(t, `{}`, string(draft4[0].Schema))
	assert.JSONEq(t, `{"not": {}}`, string(draft4[1].Schema))
}

func TestRun_PassAndFail(t *testing.T) {
	d := lookup(t, "2020-12")
	conns := []harness.Connectable{
		correct("good"),
		&testutil.FakeConnectable{Implementation: testutil.FakeImplementation{Name: "lenient"}},
	}

	res, err := Run(context.Background(), d, conns, testConfig(), quiet())
	require.NoError(t, err)
	require.Len(t, res.Verdicts, 2)

	assert.Equal(t, "go-good", res.Verdicts[0].Implementation)
	assert.True(t, res.Verdicts[0].OK)
	assert.Equal(t, "..............", res.Verdicts[0].Dots)

	assert.Equal(t, "go-lenient", res.Verdicts[1].Implementation)
	assert.False(t, res.Verdicts[1].OK)
	assert.Equal(t, ".......FFFFFFF", res.Verdicts[1].Dots)
	assert.Equal(t, 7, res.Verdicts[1].Unsuccessful.Failed)

	assert.False(t, res.OK())
	assert.Equal(t, []string{"go-lenient"}, res.Failed())
	assert.Equal(t, d.URI, res.Dialect)
}

func TestRun_StartFailureIsAVerdict(t *testing.T) {
	conns := []harness.Connectable{
		correct("good"),
		&testutil.FakeConnectable{Label: "broken", ConnectErr: errors.New("no such image")},
	}

	res, err := Run(context.Background(), lookup(t, "2020-12"), conns, testConfig(), quiet())
	require.NoError(t, err)
	require.Len(t, res.Verdicts, 2)
	assert.Equal(t, "broken", res.Verdicts[0].Implementation)
	assert.False(t, res.Verdicts[0].OK)
	assert.Contains(t, res.Verdicts[0].StartError, "no such image")
	assert.True(t, res.Verdicts[1].OK)
}

func TestRun_NothingStarts(t *testing.T) {
	conns := []harness.Connectable{
		&testutil.FakeConnectable{Label: "broken", ConnectErr: errors.New("nope")},
	}
	res, err := Run(context.Background(), lookup(t, "2020-12"), conns, testConfig(), quiet())
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, []string{"broken"}, res.Failed())
}

func TestRun_NoImplementations(t *testing.T) {
	_, err := Run(context.Background(), lookup(t, "2020-12"), nil, testConfig(), quiet())
	require.Error(t, err)
}

func TestRun_DirectImplementation(t *testing.T) {
	v, err := direct.Lookup("kaptinlin-jsonschema")
	require.NoError(t, err)

	res, err := Run(context.Background(), lookup(t, "2020-12"), []harness.Connectable{connectable.Direct{Validator: v}}, testConfig(), quiet())
	require.NoError(t, err)
	require.Len(t, res.Verdicts, 1)
	assert.True(t, res.OK(), "verdict: %+v", res.Verdicts[0])
}

func TestResult_OKNeedsVerdicts(t *testing.T) {
	assert.False(t, Result{}.OK())
}

func TestResult_Text(t *testing.T) {
	res := Result{
		Dialect: "https://json-schema.org/draft/2020-12/schema",
		Verdicts: []Verdict{
			{Implementation: "broken", StartError: "no such image"},
			{Implementation: "good", OK: true, Dots: ".."},
		},
	}

	text := res.Text()
	assert.Contains(t, text, "dialect: https://json-schema.org/draft/2020-12/schema")
	assert.Contains(t, text, "✗ broken: failed to start: no such image")
	assert.Contains(t, text, "✓ good ..")
}
