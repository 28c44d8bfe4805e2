package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bowtie/internal/report"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions

	DBPath string
}

type diffResult struct {
	Equal       bool                `json:"equal"`
	Differences []report.Difference `json:"differences"`

	// Header notes header-level mismatches (dialect or implementations).
	Header []string `json:"header,omitempty"`
}

func (d diffResult) Text() string {
	if d.Equal {
		return "reports are equal"
	}
	var b strings.Builder
	for _, h := range d.Header {
		fmt.Fprintf(&b, "%s\n", h)
	}
	for _, diff := range d.Differences {
		fmt.Fprintf(&b, "%s: %s -> %s  %s\n", diff.Implementation, diff.Before, diff.After, diff.Case)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff <before> <after>",
		Short: "Compare two runs",
		Long: `Compare two runs case by case, ignoring run ids, timestamps, seq
numbering and line order. Arguments are report files written by
"bowtie run", or run ids when --db is given.

Exits 1 when the runs differ.

Example:
  bowtie diff yesterday.jsonl today.jsonl
  bowtie diff --db runs.db 0191f3a2-... 0191f3b7-...`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "read runs by id from this SQLite database")

	return cmd
}

func runDiff(opts *DiffOptions, cmd *cobra.Command, args []string) error {
	formatter := opts.formatter(cmd)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	before, after, err := opts.load(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	equal, err := report.Equal(before, after)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to compare runs", err)
	}
	out := diffResult{Equal: equal, Differences: []report.Difference{}}
	if !equal {
		diffs, err := report.Compare(before, after)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to compare runs", err)
		}
		out.Differences = diffs
		out.Header = headerDifferences(before, after)
		if len(out.Differences) == 0 && len(out.Header) == 0 {
			out.Header = []string{"implementation metadata or repeated cases differ"}
		}
	}

	if err := formatter.Success(out); err != nil {
		return err
	}
	if !equal {
		return NewExitError(ExitFailure, "runs differ")
	}
	return nil
}

func (o *DiffOptions) load(ctx context.Context, a, b string) (*report.Report, *report.Report, error) {
	if o.DBPath == "" {
		before, err := readReport(a)
		if err != nil {
			return nil, nil, err
		}
		after, err := readReport(b)
		if err != nil {
			return nil, nil, err
		}
		return before, after, nil
	}

	st, err := openStore(o.DBPath)
	if err != nil {
		return nil, nil, err
	}
	defer st.Close()

	before, err := st.LoadReport(ctx, a)
	if err != nil {
		return nil, nil, WrapExitError(ExitNoInput, "failed to load run", err)
	}
	after, err := st.LoadReport(ctx, b)
	if err != nil {
		return nil, nil, WrapExitError(ExitNoInput, "failed to load run", err)
	}
	return before, after, nil
}

func readReport(path string) (*report.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitNoInput, "cannot read report", err)
	}
	defer f.Close()

	rep, err := report.Read(f)
	if err != nil {
		return nil, WrapExitError(ExitDataErr, fmt.Sprintf("malformed report %s", path), err)
	}
	return rep, nil
}

func headerDifferences(a, b *report.Report) []string {
	var out []string
	if a.Header.Dialect != b.Header.Dialect {
		out = append(out, fmt.Sprintf("dialect: %s -> %s", a.Header.Dialect, b.Header.Dialect))
	}
	was, now := strings.Join(a.Implementations(), ", "), strings.Join(b.Implementations(), ", ")
	if was != now {
		out = append(out, fmt.Sprintf("implementations: %s -> %s", was, now))
	}
	return out
}
