package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bowtie/internal/cases"
	"github.com/roach88/bowtie/internal/dialect"
	"github.com/roach88/bowtie/internal/engine"
	"github.com/roach88/bowtie/internal/harness"
)

func TestLoad_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
implementations:
  - direct:kaptinlin-jsonschema
dialect: 2020-12
cases: [suite/type.json, /abs/extra.yaml, "-"]
database: runs.db
max_fail: 3
timeout: 2s
restart_budget: 0
metadata:
  ci: true
`), 0o644))

	run, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "suite/type.json"), "/abs/extra.yaml", "-"}, run.Cases)
	assert.Equal(t, filepath.Join(dir, "runs.db"), run.Database)
	assert.Equal(t, 2*time.Second, run.Timeout)
	require.NotNil(t, run.RestartBudget)
	assert.Equal(t, 0, *run.RestartBudget)
	assert.Equal(t, true, run.Metadata["ci"])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, engine.IsConfigError(err))
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("implementations: [direct:x]\nfailfast: true\n"))
	require.Error(t, err)
	assert.True(t, engine.IsConfigError(err))
}

func TestValidate(t *testing.T) {
	negative := -1
	tests := []struct {
		name  string
		run   Run
		match string
	}{
		{"no implementations", Run{}, "at least one implementation"},
		{"fail fast and max fail", Run{Implementations: []string{"x"}, FailFast: true, MaxFail: 2}, "mutually exclusive"},
		{"negative max fail", Run{Implementations: []string{"x"}, MaxFail: -1}, "max_fail"},
		{"negative max cases", Run{Implementations: []string{"x"}, MaxCases: -1}, "max_cases"},
		{"negative timeout", Run{Implementations: []string{"x"}, Timeout: -time.Second}, "timeout"},
		{"negative retries", Run{Implementations: []string{"x"}, ReadRetries: -2}, "read_retries"},
		{"negative budget", Run{Implementations: []string{"x"}, RestartBudget: &negative}, "restart_budget"},
		{"bad glob", Run{Implementations: []string{"x"}, Filter: "[oops"}, "filter"},
		{"half kafka", Run{Implementations: []string{"x"}, Kafka: &Kafka{Topic: "t"}}, "kafka"},
		{"unknown dialect", Run{Implementations: []string{"x"}, Dialect: "draft-99"}, "unknown dialect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run.Validate()
			require.Error(t, err)
			assert.True(t, engine.IsConfigError(err))
			assert.Contains(t, err.Error(), tt.match)
		})
	}

	assert.NoError(t, (&Run{Implementations: []string{"x"}}).Validate())
}

func TestOptions(t *testing.T) {
	budget := 5
	run := &Run{
		Implementations:   []string{"direct:kaptinlin-jsonschema"},
		Dialect:           "2019-09",
		MaxFail:           2,
		MaxCases:          10,
		Filter:            "type*",
		ShowExpected:      true,
		RequireAllStarted: true,
		Timeout:           3 * time.Second,
		ReadRetries:       1,
		RestartBudget:     &budget,
	}

	opts, err := run.Options()
	require.NoError(t, err)

	want, err := dialect.Lookup("2019-09")
	require.NoError(t, err)
	assert.Equal(t, want.URI, opts.Dialect.URI)
	assert.Equal(t, engine.StopPolicy{MaxFail: 2}, opts.Stop)
	assert.Equal(t, 10, opts.MaxCases)
	assert.True(t, opts.ShowExpected)
	assert.True(t, opts.RequireAllStarted)
	assert.Equal(t, 3*time.Second, opts.Harness.ReadTimeout)
	assert.Equal(t, 1, opts.Harness.ReadRetries)
	assert.Equal(t, 5, opts.Harness.RestartBudget)

	require.NotNil(t, opts.Filter)
	assert.True(t, opts.Filter(cases.TestCase{Description: "type checks"}))
	assert.False(t, opts.Filter(cases.TestCase{Description: "enum"}))
}

func TestOptions_Defaults(t *testing.T) {
	opts, err := (&Run{Implementations: []string{"x"}}).Options()
	require.NoError(t, err)
	assert.Equal(t, dialect.Latest().URI, opts.Dialect.URI)
	assert.Equal(t, harness.DefaultConfig(), opts.Harness)
	assert.Nil(t, opts.Filter)
}

func TestKafkaEnabled(t *testing.T) {
	var k *Kafka
	assert.False(t, k.Enabled())
	assert.False(t, (&Kafka{}).Enabled())
	assert.True(t, (&Kafka{Brokers: []string{"b"}, Topic: "t"}).Enabled())
}
