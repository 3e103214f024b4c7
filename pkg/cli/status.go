package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jguan/container-monitor/pkg/api"
)

const clientTimeout = 10 * time.Second

func NewStatusCommand(root *RootCommand) *cobra.Command {
	var showAlerts bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running agent",
		Example: `  ctrmon status
  ctrmon status --addr 10.0.0.5:8001 -o yaml
  ctrmon status --alerts`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), root, showAlerts)
		},
	}

	cmd.Flags().BoolVar(&showAlerts, "alerts", false, "Also print the most recent alert lines")

	return cmd
}

func runStatus(ctx context.Context, root *RootCommand, showAlerts bool) error {
	ctx, cancel := context.WithTimeout(ctx, clientTimeout)
	defer cancel()

	client := api.NewClient(root.AgentURL())
	st, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("query agent at %s: %w", root.AgentURL(), err)
	}
	if err := PrintOutput(st, root.OutputOptions()); err != nil {
		return err
	}

	if !showAlerts {
		return nil
	}
	lines, err := client.Alerts(ctx)
	if err != nil {
		return fmt.Errorf("query alerts: %w", err)
	}
	return PrintOutput(lines, root.OutputOptions())
}
