// Package config loads YAML run files and turns them into engine options.
//
// A run file names the implementations to test and how to run them:
//
//	implementations: [direct:kaptinlin-jsonschema, exec:./my-validator]
//	dialect: 2020-12
//	cases: [suite/type.json, extra.yaml]
//	max_fail: 5
//	timeout: 10s
//	database: runs.db
//	kafka:
//	  brokers: [localhost:9092]
//	  topic: bowtie-results
//
// Relative paths resolve against the run file's directory. Command-line
// flags override file values field by field.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bowtie/internal/cases"
	"github.com/roach88/bowtie/internal/dialect"
	"github.com/roach88/bowtie/internal/engine"
	"github.com/roach88/bowtie/internal/harness"
)

// Kafka names a broker set and topic.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled reports whether any Kafka settings were given.
func (k *Kafka) Enabled() bool {
	return k != nil && (len(k.Brokers) > 0 || k.Topic != "")
}

// Run is one run file.
type Run struct {
	// Implementations are connectable references (image:, exec:, direct:).
	Implementations []string `yaml:"implementations"`

	// Dialect is a URI, short name or alias; empty means the latest.
	Dialect string `yaml:"dialect,omitempty"`

	// Cases lists input files, read in order.
	Cases []string `yaml:"cases,omitempty"`

	FailFast bool `yaml:"fail_fast,omitempty"`
	MaxFail  int  `yaml:"max_fail,omitempty"`
	MaxCases int  `yaml:"max_cases,omitempty"`

	// Filter is a glob matched against case descriptions.
	Filter string `yaml:"filter,omitempty"`

	ShowExpected      bool `yaml:"show_expected,omitempty"`
	RequireAllStarted bool `yaml:"require_all_started,omitempty"`

	Timeout       time.Duration `yaml:"timeout,omitempty"`
	ReadRetries   int           `yaml:"read_retries,omitempty"`
	RestartBudget *int          `yaml:"restart_budget,omitempty"`

	// Database, when set, is a SQLite file the finished run is saved to.
	Database string `yaml:"database,omitempty"`

	// Kafka, when set, mirrors the result stream to a topic.
	Kafka *Kafka `yaml:"kafka,omitempty"`

	Metadata map[string]any `yaml:"metadata,omitempty"`
}

// Load reads and validates a run file.
// Unknown fields are rejected so typos surface instead of being ignored.
func Load(file string) (*Run, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, engine.NewConfigError("failed to read run file", err)
	}
	run, err := Parse(data)
	if err != nil {
		return nil, err
	}
	run.resolve(filepath.Dir(file))
	return run, nil
}

// Parse decodes and validates run file contents. Paths are left as written.
func Parse(data []byte) (*Run, error) {
	var run Run
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&run); err != nil {
		return nil, engine.NewConfigError("failed to parse run file", err)
	}
	if err := run.Validate(); err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *Run) resolve(base string) {
	for i, p := range r.Cases {
		if p != "-" && !filepath.IsAbs(p) {
			r.Cases[i] = filepath.Join(base, p)
		}
	}
	if r.Database != "" && r.Database != ":memory:" && !filepath.IsAbs(r.Database) {
		r.Database = filepath.Join(base, r.Database)
	}
}

// Validate checks the settings that can be judged without starting
// anything. Every failure is a configuration error.
func (r *Run) Validate() error {
	var errs []error
	if len(r.Implementations) == 0 {
		errs = append(errs, errors.New("at least one implementation is required"))
	}
	if r.FailFast && r.MaxFail > 0 {
		errs = append(errs, errors.New("fail_fast and max_fail are mutually exclusive"))
	}
	if r.MaxFail < 0 {
		errs = append(errs, errors.New("max_fail must not be negative"))
	}
	if r.MaxCases < 0 {
		errs = append(errs, errors.New("max_cases must not be negative"))
	}
	if r.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	if r.ReadRetries < 0 {
		errs = append(errs, errors.New("read_retries must not be negative"))
	}
	if r.RestartBudget != nil && *r.RestartBudget < 0 {
		errs = append(errs, errors.New("restart_budget must not be negative"))
	}
	if r.Filter != "" {
		if _, err := path.Match(r.Filter, ""); err != nil {
			errs = append(errs, fmt.Errorf("filter %q: %w", r.Filter, err))
		}
	}
	if r.Kafka.Enabled() && (len(r.Kafka.Brokers) == 0 || r.Kafka.Topic == "") {
		errs = append(errs, errors.New("kafka needs both brokers and topic"))
	}
	if r.Dialect != "" {
		if _, err := dialect.Lookup(r.Dialect); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return engine.NewConfigError("invalid run configuration", errors.Join(errs...))
	}
	return nil
}

// ResolveDialect returns the configured dialect, or the latest known one.
func (r *Run) ResolveDialect() (dialect.Dialect, error) {
	if r.Dialect == "" {
		return dialect.Latest(), nil
	}
	d, err := dialect.Lookup(r.Dialect)
	if err != nil {
		return dialect.Dialect{}, engine.NewConfigError("unknown dialect", err)
	}
	return d, nil
}

// HarnessConfig returns per-harness settings, defaulting what was not set.
func (r *Run) HarnessConfig() harness.Config {
	cfg := harness.DefaultConfig()
	if r.Timeout > 0 {
		cfg.ReadTimeout = r.Timeout
	}
	if r.ReadRetries > 0 {
		cfg.ReadRetries = r.ReadRetries
	}
	if r.RestartBudget != nil {
		cfg.RestartBudget = *r.RestartBudget
	}
	return cfg
}

// Options builds engine options from the run file.
func (r *Run) Options() (engine.Options, error) {
	if err := r.Validate(); err != nil {
		return engine.Options{}, err
	}
	d, err := r.ResolveDialect()
	if err != nil {
		return engine.Options{}, err
	}
	opts := engine.Options{
		Dialect:           d,
		Stop:              engine.StopPolicy{FailFast: r.FailFast, MaxFail: r.MaxFail},
		ShowExpected:      r.ShowExpected,
		MaxCases:          r.MaxCases,
		RequireAllStarted: r.RequireAllStarted,
		Metadata:          r.Metadata,
		Harness:           r.HarnessConfig(),
	}
	if r.Filter != "" {
		opts.Filter = GlobFilter(r.Filter)
	}
	return opts, nil
}

// GlobFilter keeps cases whose description matches pattern. The pattern
// must already be known to be well formed.
func GlobFilter(pattern string) func(cases.TestCase) bool {
	return func(tc cases.TestCase) bool {
		ok, _ := path.Match(pattern, tc.Description)
		return ok
	}
}
