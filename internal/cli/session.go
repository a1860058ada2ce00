package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/epochsim/pkg/client"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Drive simulation sessions on an EpochSim server",
	}
	cmd.AddCommand(
		newSessionCreateCmd(a),
		newSessionListCmd(a),
		newSessionShowCmd(a),
		newSessionStepCmd(a, "tick", "Advance a session N ticks"),
		newSessionStepCmd(a, "back", "Rewind a session N ticks"),
		newSessionPlayCmd(a, "play", "Start autoplay"),
		newSessionPlayCmd(a, "pause", "Stop autoplay"),
		newSessionSpawnCmd(a),
		newSessionKillCmd(a),
		newSessionWatchCmd(a),
		newSessionDeleteCmd(a),
	)
	return cmd
}

func newSessionCreateCmd(a *app) *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "create [scenario.yaml]",
		Short: "Create a session from a scenario file or a stored preset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				v   *client.View
				err error
			)
			switch {
			case preset != "" && len(args) == 0:
				v, err = a.client().CreateSessionFromPreset(cmd.Context(), preset)
			case preset == "" && len(args) == 1:
				sc, lerr := loadClientScenario(args[0])
				if lerr != nil {
					return lerr
				}
				v, err = a.client().CreateSession(cmd.Context(), sc)
			default:
				return fmt.Errorf("give either a scenario file or --preset")
			}
			if err != nil {
				return fmt.Errorf("create session: %w", err)
			}
			a.log.Debug("session created", "id", v.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "Session created: %s\n", v.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "create from the named preset stored on the server")
	return cmd
}

func newSessionListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List live sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.client().ListSessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			rows := make([][]string, 0, len(list))
			for _, s := range list {
				state := "paused"
				switch {
				case s.Finished:
					state = "finished"
				case s.Playing:
					state = "playing"
				}
				rows = append(rows, []string{s.ID, s.Name, s.Algorithm, strconv.Itoa(s.Time), state})
			}
			return writeTable(cmd.OutOrStdout(), []string{"id", "name", "algorithm", "time", "state"}, rows)
		},
	}
}

func newSessionShowCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the state of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.client().GetSession(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get session: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), v)
			}
			return writeView(cmd.OutOrStdout(), v)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw view as JSON")
	return cmd
}

func newSessionStepCmd(a *app, use, short string) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client()
			var (
				v   *client.View
				err error
			)
			if use == "tick" {
				v, err = c.Tick(cmd.Context(), args[0], n)
			} else {
				var taken int
				v, taken, err = c.Back(cmd.Context(), args[0], n)
				if err == nil && taken < n {
					fmt.Fprintf(cmd.ErrOrStderr(), "rewound %d of %d ticks (start of history)\n", taken, n)
				}
			}
			if err != nil {
				return fmt.Errorf("%s: %w", use, err)
			}
			return writeView(cmd.OutOrStdout(), v)
		},
	}

	cmd.Flags().IntVarP(&n, "steps", "n", 1, "number of ticks")
	return cmd
}

func newSessionPlayCmd(a *app, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client()
			var (
				v   *client.View
				err error
			)
			if use == "play" {
				v, err = c.Play(cmd.Context(), args[0])
			} else {
				v, err = c.Pause(cmd.Context(), args[0])
			}
			if err != nil {
				return fmt.Errorf("%s: %w", use, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s: playing=%v t=%d\n", v.ID, v.Playing, v.Time)
			return nil
		},
	}
}

func newSessionSpawnCmd(a *app) *cobra.Command {
	var (
		name      string
		execution int
	)

	cmd := &cobra.Command{
		Use:   "spawn <id>",
		Short: "Inject a process that arrives now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := map[string]any{}
			if name != "" {
				fields["name"] = name
			}
			if execution > 0 {
				fields["execution"] = execution
			}
			rec, err := a.client().CreateProcess(cmd.Context(), args[0], fields)
			if err != nil {
				return fmt.Errorf("spawn: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Process created: %d (%s, execution %d)\n",
				rec.Int("id", 0), formatAny(rec["name"]), rec.Int("execution", 0))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "process name (default: generated)")
	cmd.Flags().IntVar(&execution, "execution", 0, "execution time (default: algorithm default)")
	return cmd
}

func newSessionKillCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "kill <id> <pid>",
		Short: "Remove a ready process from a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("pid must be an integer: %w", err)
			}
			if err := a.client().KillProcess(cmd.Context(), args[0], pid); err != nil {
				return fmt.Errorf("kill: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Process %d killed\n", pid)
			return nil
		},
	}
}

func newSessionWatchCmd(a *app) *cobra.Command {
	var play bool

	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Stream a session's state until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client()
			views, err := c.Watch(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			if play {
				if _, err := c.Play(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("play: %w", err)
				}
			}
			out := cmd.OutOrStdout()
			for v := range views {
				fmt.Fprintf(out, "t=%-4d cpu=%-6s ready=%d ended=%d\n", v.Time, v.Currently, len(v.Ready), len(v.Ended))
				if v.Finished && !v.Playing {
					return nil
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&play, "play", false, "start autoplay after connecting")
	return cmd
}

func newSessionDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Stop and remove a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().DeleteSession(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s deleted\n", args[0])
			return nil
		},
	}
}
