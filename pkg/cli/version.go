package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewVersionCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the version, build date, and git commit of ctrmon.",
		// version needs no config.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			format, err := ParseOutputFormat(root.v.GetString("output"))
			if err != nil {
				return err
			}
			root.opts.Format = format
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return printVersion(root.OutputOptions())
		},
	}

	return cmd
}

type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	GitCommit string `json:"gitCommit" yaml:"gitCommit"`
}

func printVersion(opts *OutputOptions) error {
	if opts.Format == OutputJSON || opts.Format == OutputYAML {
		return PrintOutput(versionInfo{
			Version:   cliVersion,
			BuildDate: cliBuildDate,
			GitCommit: cliGitCommit,
		}, opts)
	}

	fmt.Fprintf(opts.Writer, "ctrmon version %s\n", cliVersion)
	fmt.Fprintf(opts.Writer, "  Commit: %s\n", cliGitCommit)
	fmt.Fprintf(opts.Writer, "  Built:  %s\n", cliBuildDate)
	return nil
}
