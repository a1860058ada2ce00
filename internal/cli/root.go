// Package cli implements the epochsim command line.
//
//	epochsim serve --config config.yaml
//	epochsim run scenario.yaml --output table
//	epochsim algorithms
//	epochsim session create scenario.yaml
//	epochsim session tick <id> -n 5
//	epochsim scenario save scenario.yaml
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/epochsim/internal/logging"
	"github.com/snehjoshi/epochsim/pkg/client"
)

// app carries the persistent flags and what PersistentPreRun builds from them.
type app struct {
	server    string
	apiKey    string
	logLevel  string
	logFormat string

	log *slog.Logger
}

func (a *app) client() *client.Client {
	return client.New(a.server, client.WithAPIKey(a.apiKey))
}

// envOr returns the value of the environment variable key, or def.
func envOr(key, def string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return def
}

// NewRootCmd creates the root cobra command for the epochsim CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "epochsim",
		Short: "EpochSim: a reversible CPU scheduling simulator",
		Long: "EpochSim steps CPU scheduling algorithms forward and backward in time.\n" +
			"Run scenarios locally or drive simulation sessions on an EpochSim server.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.log = logging.NewWithWriter(a.logLevel, a.logFormat, cmd.ErrOrStderr())
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&a.server, "server", envOr("EPOCHSIM_SERVER", "http://localhost:8080"), "EpochSim server URL (or EPOCHSIM_SERVER env)")
	root.PersistentFlags().StringVar(&a.apiKey, "api-key", os.Getenv("EPOCHSIM_API_KEY"), "API key for servers with auth enabled (or EPOCHSIM_API_KEY env)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newServeCmd(a),
		newRunCmd(a),
		newAlgorithmsCmd(),
		newSessionCmd(a),
		newScenarioCmd(a),
	)

	return root
}
