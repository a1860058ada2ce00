package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/epochsim/internal/scenario"
	"github.com/snehjoshi/epochsim/pkg/client"
)

// loadClientScenario reads and validates a scenario file locally before it
// is sent to a server.
func loadClientScenario(path string) (*client.Scenario, error) {
	sc, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("encode scenario: %w", err)
	}
	var out client.Scenario
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("encode scenario: %w", err)
	}
	return &out, nil
}

func newScenarioCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Manage scenario presets stored on an EpochSim server",
	}

	save := &cobra.Command{
		Use:   "save <scenario.yaml>",
		Short: "Store a scenario file as a preset under its name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadClientScenario(args[0])
			if err != nil {
				return err
			}
			if err := a.client().SaveScenario(cmd.Context(), sc); err != nil {
				return fmt.Errorf("save scenario: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scenario saved: %s\n", sc.Name)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scs, err := a.client().ListScenarios(cmd.Context())
			if err != nil {
				return fmt.Errorf("list scenarios: %w", err)
			}
			rows := make([][]string, 0, len(scs))
			for _, sc := range scs {
				rows = append(rows, []string{sc.Name, sc.Algorithm, strconv.Itoa(len(sc.Processes)), sc.Description})
			}
			return writeTable(cmd.OutOrStdout(), []string{"name", "algorithm", "processes", "description"}, rows)
		},
	}

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a stored preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().DeleteScenario(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete scenario: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scenario %s deleted\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(save, list, del)
	return cmd
}
