package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bowtie/internal/dialect"
	"github.com/roach88/bowtie/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions

	DBPath string
}

type runList []store.RunSummary

func (l runList) Text() string {
	if len(l) == 0 {
		return "no runs stored"
	}
	var b strings.Builder
	for _, r := range l {
		fmt.Fprintf(&b, "%s  %s  %-8s %4d cases  %s\n",
			r.RunID, r.Started.UTC().Format(time.RFC3339), shortDialect(r.Dialect), r.Cases, shortDigest(r.Digest))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs saved in a database",
		Long: `List every run saved with "bowtie run --db", oldest first.

Runs with the same digest produced equal reports.

Example:
  bowtie runs --db runs.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := openStore(opts.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list runs", err)
	}
	return formatter.Success(runList(runs))
}

// openStore opens an existing database. A missing file is NOINPUT rather
// than an empty database.
func openStore(path string) (*store.Store, error) {
	if err := statInput(path); err != nil {
		return nil, err
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to open database", err)
	}
	return st, nil
}

func shortDialect(uri string) string {
	if d, err := dialect.Lookup(uri); err == nil {
		return d.ShortName
	}
	return uri
}

func shortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
