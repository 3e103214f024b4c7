package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jguan/container-monitor/pkg/api"
)

func NewSettingsCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or change a running agent's settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the collection frequency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsGet(cmd.Context(), root)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "set <seconds>",
		Short:   "Change the collection frequency",
		Example: "  ctrmon settings set 60",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%s: %q", api.MsgInvalidFrequency, args[0])
			}
			return runSettingsSet(cmd.Context(), root, seconds)
		},
	})

	return cmd
}

type frequencyView struct {
	CollectionFrequency int `json:"collection_frequency" yaml:"collection_frequency"`
}

func runSettingsGet(ctx context.Context, root *RootCommand) error {
	ctx, cancel := context.WithTimeout(ctx, clientTimeout)
	defer cancel()

	seconds, err := api.NewClient(root.AgentURL()).Frequency(ctx)
	if err != nil {
		return fmt.Errorf("query agent at %s: %w", root.AgentURL(), err)
	}
	return PrintOutput(frequencyView{CollectionFrequency: seconds}, root.OutputOptions())
}

func runSettingsSet(ctx context.Context, root *RootCommand, seconds int) error {
	ctx, cancel := context.WithTimeout(ctx, clientTimeout)
	defer cancel()

	applied, err := api.NewClient(root.AgentURL()).SetFrequency(ctx, seconds)
	if err != nil {
		return fmt.Errorf("update agent at %s: %w", root.AgentURL(), err)
	}
	PrintSuccess(fmt.Sprintf("Collection frequency set to %ds", applied), root.OutputOptions())
	return nil
}
