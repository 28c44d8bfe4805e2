package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bowtie/internal/config"
	"github.com/roach88/bowtie/internal/harness"
	"github.com/roach88/bowtie/internal/protocol"
)

// InfoOptions holds flags for the info command.
type InfoOptions struct {
	*RootOptions

	Implementations []string
}

// implementationInfo is one described implementation.
type implementationInfo struct {
	ID string `json:"id"`
	protocol.Implementation
}

type infoResult []implementationInfo

func (r infoResult) Text() string {
	var b strings.Builder
	for i, info := range r {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s\n", info.ID)
		field := func(name, value string) {
			if value != "" {
				fmt.Fprintf(&b, "  %-17s %s\n", name+":", value)
			}
		}
		field("name", info.Name)
		field("language", info.Language)
		field("version", info.Version)
		field("language_version", info.LanguageVersion)
		field("os", strings.TrimSpace(info.OS+" "+info.OSVersion))
		field("homepage", info.Homepage)
		field("issues", info.Issues)
		field("source", info.Source)
		field("dialects", strings.Join(info.Dialects, ", "))
		for _, link := range info.Links {
			field("link", link.URL)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InfoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show what implementations say about themselves",
		Long: `Start each implementation, print the metadata it reports in its
start response, and stop it again. No dialect is negotiated.

Example:
  bowtie info -i direct:kaptinlin-jsonschema
  bowtie info -i python-jsonschema --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Implementations, "implementation", "i", nil, "implementation to describe (repeatable)")

	return cmd
}

func runInfo(opts *InfoOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	run := &config.Run{Implementations: opts.Implementations}
	if err := run.Validate(); err != nil {
		return err
	}
	conns, err := connectables(run.Implementations)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	out := make(infoResult, 0, len(conns))
	for _, conn := range conns {
		impl, err := harness.New(conn, run.HarnessConfig(), logger).Describe(ctx)
		if harness.IsStartError(err) {
			return WrapExitError(ExitConfig, fmt.Sprintf("cannot describe %s", conn.Name()), err)
		}
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("cannot describe %s", conn.Name()), err)
		}
		out = append(out, implementationInfo{ID: impl.ID(), Implementation: impl})
	}
	return formatter.Success(out)
}
