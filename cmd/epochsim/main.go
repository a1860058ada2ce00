// Command epochsim runs the EpochSim server and drives simulations from the
// command line.
//
// Usage:
//
//	epochsim serve [--config path/to/config.yaml]
//	epochsim run scenario.yaml [--ticks N] [--back M] [--output table|json]
//	epochsim session create scenario.yaml
package main

import (
	"fmt"
	"os"

	"github.com/snehjoshi/epochsim/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "epochsim: %v\n", err)
		os.Exit(1)
	}
}
