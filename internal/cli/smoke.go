package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bowtie/internal/config"
	"github.com/roach88/bowtie/internal/smoke"
)

// SmokeOptions holds flags for the smoke command.
type SmokeOptions struct {
	*RootOptions

	Implementations []string
	Dialect         string
}

// NewSmokeCommand creates the smoke command.
func NewSmokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SmokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Check that implementations answer trivial cases correctly",
		Long: `Send every implementation two cases it cannot reasonably get wrong:
a schema under which every instance is valid and one under which none is.

Example:
  bowtie smoke -i direct:kaptinlin-jsonschema
  bowtie smoke -i python-jsonschema -D 7`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSmoke(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Implementations, "implementation", "i", nil, "implementation to check (repeatable)")
	cmd.Flags().StringVarP(&opts.Dialect, "dialect", "D", "", "dialect URI or short name (default: latest)")

	return cmd
}

func runSmoke(opts *SmokeOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	run := &config.Run{Implementations: opts.Implementations, Dialect: opts.Dialect}
	if err := run.Validate(); err != nil {
		return err
	}
	d, err := run.ResolveDialect()
	if err != nil {
		return err
	}
	conns, err := connectables(run.Implementations)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	res, err := smoke.Run(ctx, d, conns, run.HarnessConfig(), logger)
	if err != nil {
		return WrapExitError(ExitFailure, "smoke run failed", err)
	}

	formatter.VerboseLog("smoke tested %d implementation(s)", len(res.Verdicts))
	if err := formatter.Success(res); err != nil {
		return err
	}
	if !res.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("smoke failed: %s", strings.Join(res.Failed(), ", ")))
	}
	return nil
}
