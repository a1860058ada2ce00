package cli

import (
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/epochsim/internal/catalog"
	"github.com/snehjoshi/epochsim/internal/scenario"
	"github.com/snehjoshi/epochsim/internal/simulator"
	"github.com/snehjoshi/epochsim/internal/types"
)

// runResult is the JSON form of a local run.
type runResult struct {
	Scenario  string          `json:"scenario,omitempty"`
	Algorithm string          `json:"algorithm"`
	Time      int             `json:"time"`
	Currently types.Indicator `json:"currently"`
	Finished  bool            `json:"finished"`
	State     types.Record    `json:"state"`
	Fields    []types.Flag    `json:"fields"`
	Processes []types.Record  `json:"processes"`
	Killed    []types.Record  `json:"killed"`
}

func newRunCmd(a *app) *cobra.Command {
	var (
		ticks    int
		back     int
		maxTicks int
		output   string
		seed     uint64
	)

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Simulate a scenario locally and print the process table",
		Long: "Run loads a scenario file, steps the simulation until every process has\n" +
			"finished (or --ticks steps), optionally rewinds --back steps, and prints\n" +
			"the resulting process table.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "table" && output != "json" {
				return fmt.Errorf("unknown output %q (want table or json)", output)
			}
			sc, err := scenario.Load(args[0])
			if err != nil {
				return err
			}

			var rng *rand.Rand
			if cmd.Flags().Changed("seed") {
				rng = rand.New(rand.NewPCG(seed, seed))
			}
			sim, err := sc.Build(catalog.Default(), rng)
			if err != nil {
				return err
			}

			steps, err := advance(sim, ticks, maxTicks)
			if err != nil {
				return err
			}
			rewound := 0
			for rewound < back && sim.Back() {
				rewound++
			}
			a.log.Debug("run complete", "scenario", sc.Name, "ticks", steps, "back", rewound, "time", sim.Time())

			if output == "json" {
				return writeJSON(cmd.OutOrStdout(), runResult{
					Scenario:  sc.Name,
					Algorithm: sim.Algorithm(),
					Time:      sim.Time(),
					Currently: sim.Currently(),
					Finished:  sim.Finished(),
					State:     sim.AlgorithmState(),
					Fields:    sim.ProcessFlags(),
					Processes: sim.AllProcesses(),
					Killed:    sim.KilledQueue(),
				})
			}
			return writeRunTable(cmd.OutOrStdout(), sc, sim)
		},
	}

	cmd.Flags().IntVar(&ticks, "ticks", 0, "step exactly N ticks instead of running to completion")
	cmd.Flags().IntVar(&back, "back", 0, "rewind M ticks after stepping")
	cmd.Flags().IntVar(&maxTicks, "max-ticks", 100000, "give up when the simulation has not finished after this many ticks")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for random defaults (reproducible runs)")
	return cmd
}

// advance steps sim n ticks, or until it finishes when n is zero.
func advance(sim *simulator.Simulator, n, limit int) (int, error) {
	if n > 0 {
		for range n {
			sim.Tick()
		}
		return n, nil
	}
	steps := 0
	for !sim.Finished() {
		if steps >= limit {
			return steps, fmt.Errorf("simulation not finished after %d ticks", limit)
		}
		sim.Tick()
		steps++
	}
	return steps, nil
}

func writeRunTable(w io.Writer, sc *scenario.Scenario, sim *simulator.Simulator) error {
	name := sc.Name
	if name == "" {
		name = "scenario"
	}
	status := "running"
	if sim.Finished() {
		status = "finished"
	}
	fmt.Fprintf(w, "%s  %s  t=%d  cpu=%s  %s\n", name, sim.Algorithm(), sim.Time(), sim.Currently(), status)

	state := sim.AlgorithmState()
	fmt.Fprint(w, "state ")
	for _, f := range state.Flags() {
		v, _ := state.Get(f)
		fmt.Fprintf(w, " %s=%s", f, v)
	}
	fmt.Fprint(w, "\n\n")

	flags := sim.ProcessFlags()
	return writeTable(w, flagNames(flags), recordRows(flags, sim.AllProcesses(), sim.KilledQueue()))
}
