package cli

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bowtie/internal/cases"
	"github.com/roach88/bowtie/internal/config"
	"github.com/roach88/bowtie/internal/connectable"
	"github.com/roach88/bowtie/internal/engine"
	"github.com/roach88/bowtie/internal/harness"
	"github.com/roach88/bowtie/internal/input"
	"github.com/roach88/bowtie/internal/reporter"
	"github.com/roach88/bowtie/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// Config is an optional YAML run file; flags override its values.
	Config string

	// Flags collects flag values in run-file shape.
	Flags config.Run

	RestartBudget   int
	KafkaBrokers    []string
	KafkaTopic      string
	KafkaInputTopic string
	Metadata        map[string]string

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator

	// Now allows overriding the header clock (for testing).
	Now func() time.Time
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [case-file...]",
		Short: "Run test cases against implementations",
		Long: `Run test cases against one or more implementations.

Cases are read from the given files (.json, .jsonl, .yaml, .cue), or as
JSON lines from standard input when no file is given. Every case is sent
to every implementation; the result stream is written to standard output.

Implementations are container images (image:<ref> or a bare name under
ghcr.io/bowtie-json-schema/), local commands (exec:<command line>) or
in-process validators (direct:<name>).

Exit status is 0 even when implementations get answers wrong. It is 65
for malformed input or protocol violations, 66 when no case ran and 78
for configuration problems, including implementations that failed to start.

Example:
  bowtie run -i direct:kaptinlin-jsonschema cases.jsonl
  bowtie run -i python-jsonschema -i go-kaptinlin -D 2020-12 -x suite.json
  bowtie run --config run.yaml --db runs.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCases(opts, cmd, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Config, "config", "", "YAML run file")
	f.StringArrayVarP(&opts.Flags.Implementations, "implementation", "i", nil, "implementation to run (repeatable)")
	f.StringVarP(&opts.Flags.Dialect, "dialect", "D", "", "dialect URI or short name (default: latest)")
	f.BoolVarP(&opts.Flags.FailFast, "fail-fast", "x", false, "stop at the first unsuccessful test")
	f.IntVar(&opts.Flags.MaxFail, "max-fail", 0, "stop after this many unsuccessful tests")
	f.IntVar(&opts.Flags.MaxCases, "max-cases", 0, "dispatch at most this many cases")
	f.StringVarP(&opts.Flags.Filter, "filter", "k", "", "only run cases whose description matches this glob")
	f.BoolVar(&opts.Flags.ShowExpected, "show-expected", false, "send expected results to implementations")
	f.BoolVar(&opts.Flags.RequireAllStarted, "require-all-started", false, "abort if any implementation fails to start")
	f.DurationVar(&opts.Flags.Timeout, "timeout", 0, "per-read timeout for implementation responses")
	f.IntVar(&opts.Flags.ReadRetries, "read-retries", 0, "timed-out reads tolerated per case")
	f.IntVar(&opts.RestartBudget, "restart-budget", harness.DefaultRestartBudget, "restarts allowed per implementation")
	f.StringVar(&opts.Flags.Database, "db", "", "save the run to this SQLite database")
	f.StringSliceVar(&opts.KafkaBrokers, "kafka-brokers", nil, "Kafka brokers for the result mirror and case source")
	f.StringVar(&opts.KafkaTopic, "kafka-topic", "", "mirror the result stream to this Kafka topic")
	f.StringVar(&opts.KafkaInputTopic, "kafka-input-topic", "", "read cases from this Kafka topic instead of files")
	f.StringToStringVar(&opts.Metadata, "set", nil, "extra key=value metadata for the report header")

	return cmd
}

// resolve merges the run file (if any) with explicitly set flags.
func (o *RunOptions) resolve(cmd *cobra.Command, args []string) (*config.Run, error) {
	run := &config.Run{}
	if o.Config != "" {
		if err := statInput(o.Config); err != nil {
			return nil, err
		}
		loaded, err := config.Load(o.Config)
		if err != nil {
			return nil, err
		}
		run = loaded
	}

	f := cmd.Flags()
	if f.Changed("implementation") {
		run.Implementations = o.Flags.Implementations
	}
	if f.Changed("dialect") {
		run.Dialect = o.Flags.Dialect
	}
	if f.Changed("fail-fast") {
		run.FailFast = o.Flags.FailFast
	}
	if f.Changed("max-fail") {
		run.MaxFail = o.Flags.MaxFail
	}
	if f.Changed("max-cases") {
		run.MaxCases = o.Flags.MaxCases
	}
	if f.Changed("filter") {
		run.Filter = o.Flags.Filter
	}
	if f.Changed("show-expected") {
		run.ShowExpected = o.Flags.ShowExpected
	}
	if f.Changed("require-all-started") {
		run.RequireAllStarted = o.Flags.RequireAllStarted
	}
	if f.Changed("timeout") {
		run.Timeout = o.Flags.Timeout
	}
	if f.Changed("read-retries") {
		run.ReadRetries = o.Flags.ReadRetries
	}
	if f.Changed("restart-budget") {
		budget := o.RestartBudget
		run.RestartBudget = &budget
	}
	if f.Changed("db") {
		run.Database = o.Flags.Database
	}
	if f.Changed("kafka-topic") {
		brokers := o.KafkaBrokers
		if len(brokers) == 0 && run.Kafka != nil {
			brokers = run.Kafka.Brokers
		}
		run.Kafka = &config.Kafka{Brokers: brokers, Topic: o.KafkaTopic}
	} else if f.Changed("kafka-brokers") && run.Kafka != nil {
		run.Kafka.Brokers = o.KafkaBrokers
	}
	if len(o.Metadata) > 0 {
		if run.Metadata == nil {
			run.Metadata = make(map[string]any, len(o.Metadata))
		}
		for k, v := range o.Metadata {
			run.Metadata[k] = v
		}
	}
	if len(args) > 0 {
		run.Cases = args
	}

	if o.KafkaInputTopic != "" && len(o.inputBrokers(run)) == 0 {
		return nil, NewExitError(ExitCommandError, "--kafka-input-topic needs --kafka-brokers")
	}
	return run, nil
}

func runCases(opts *RunOptions, cmd *cobra.Command, args []string) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	run, err := opts.resolve(cmd, args)
	if err != nil {
		return err
	}
	engineOpts, err := run.Options()
	if err != nil {
		return err
	}
	conns, err := connectables(run.Implementations)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	source, closeSource, err := opts.source(ctx, run)
	if err != nil {
		return err
	}
	defer closeSource()

	sinks := reporter.Multi{reporter.NewStream(cmd.OutOrStdout(), Version)}
	var collector *reporter.Collector
	if run.Database != "" {
		collector = reporter.NewCollector(Version)
		sinks = append(sinks, collector)
	}
	if run.Kafka.Enabled() {
		mirror, err := reporter.NewMirror(reporter.MirrorConfig{Brokers: run.Kafka.Brokers, Topic: run.Kafka.Topic}, Version)
		if err != nil {
			return WrapExitError(ExitConfig, "failed to configure Kafka mirror", err)
		}
		defer func() {
			if closeErr := mirror.Close(); closeErr != nil {
				logger.Error("error closing Kafka mirror", "error", closeErr)
			}
		}()
		sinks = append(sinks, mirror)
	}

	var options []engine.Option
	if opts.RunIDs != nil {
		options = append(options, engine.WithRunIDGenerator(opts.RunIDs))
	}
	if opts.Now != nil {
		options = append(options, engine.WithNow(opts.Now))
	}
	eng := engine.New(sinks, engineOpts, logger, options...)

	logger.Debug("run starting",
		"implementations", len(conns),
		"dialect", engineOpts.Dialect.ShortName,
	)
	summary, runErr := eng.Run(ctx, conns, source)

	if collector != nil {
		if err := persist(context.WithoutCancel(ctx), run.Database, collector, logger); err != nil {
			if runErr != nil {
				logger.Error("failed to save run", "error", err)
			} else {
				runErr = WrapExitError(ExitFailure, "failed to save run", err)
			}
		}
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("run finished",
		"cases", summary.Cases,
		"failed", summary.Unsuccessful.Failed,
		"errored", summary.Unsuccessful.Errored,
		"skipped", summary.Unsuccessful.Skipped,
		"did_fail_fast", summary.DidFailFast,
	)
	return summaryError(summary)
}

// summaryError maps a finished run to its exit status. Wrong answers alone
// are not an error.
func summaryError(summary engine.Summary) error {
	if summary.ProtocolViolations > 0 {
		return NewExitError(ExitDataErr, fmt.Sprintf("%d response(s) violated the protocol", summary.ProtocolViolations))
	}
	if summary.Degraded() {
		return NewExitError(ExitConfig, fmt.Sprintf("%d implementation(s) failed to start", len(summary.FailedToStart)))
	}
	return nil
}

// source picks where cases come from: a Kafka topic, the given files, or
// standard input.
func (o *RunOptions) source(ctx context.Context, run *config.Run) (iter.Seq2[cases.TestCase, error], func(), error) {
	if o.KafkaInputTopic != "" {
		src, err := input.NewKafkaSource(input.KafkaConfig{Brokers: o.inputBrokers(run), Topic: o.KafkaInputTopic})
		if err != nil {
			return nil, nil, WrapExitError(ExitConfig, "failed to configure Kafka case source", err)
		}
		return src.Cases(ctx), func() { _ = src.Close() }, nil
	}

	paths := run.Cases
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	for _, p := range paths {
		if p == "-" {
			continue
		}
		if err := statInput(p); err != nil {
			return nil, nil, err
		}
		if _, err := input.FormatFor(p); err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "cannot read cases", err)
		}
	}
	return input.Files(paths...), func() {}, nil
}

// statInput reports a missing or unreadable input file as NOINPUT.
func statInput(path string) error {
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitNoInput, "cannot read input", err)
	}
	return nil
}

// inputBrokers are the flag brokers, falling back to the run file's.
func (o *RunOptions) inputBrokers(run *config.Run) []string {
	if len(o.KafkaBrokers) > 0 {
		return o.KafkaBrokers
	}
	if run.Kafka != nil {
		return run.Kafka.Brokers
	}
	return nil
}

func persist(ctx context.Context, path string, collector *reporter.Collector, logger *slog.Logger) error {
	rep, err := collector.Report()
	if err != nil {
		// Nothing started, so there is no run to keep.
		return nil
	}

	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	if err := st.SaveReport(ctx, rep); err != nil {
		return err
	}
	logger.Info("run saved", "db", path, "run_id", rep.Header.RunID)
	return nil
}

// connectables parses implementation references.
func connectables(refs []string) ([]harness.Connectable, error) {
	parsed, err := connectable.ParseAll(refs)
	if err != nil {
		return nil, engine.NewConfigError("invalid implementation", err)
	}
	out := make([]harness.Connectable, len(parsed))
	for i, c := range parsed {
		out[i] = c
	}
	return out, nil
}

// signalContext cancels on SIGINT/SIGTERM so harnesses get torn down.
// Uses the command's context if available (for testing).
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, func()) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
