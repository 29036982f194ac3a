package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/allycraft/allycraft/internal/launch"
	"github.com/allycraft/allycraft/internal/version"
)

// stopTimeout bounds how long an interrupted launch waits for the game.
const stopTimeout = 15 * time.Second

func newLaunchCmd(a *app) *cobra.Command {
	var envFlags []string
	cmd := &cobra.Command{
		Use:   "launch <version>",
		Short: "Start an installed version and wait for it to exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := version.Parse(args[0])
			if err != nil {
				return err
			}
			env, err := parseEnvFlags(envFlags)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			h, err := a.manager.Launch(cmd.Context(), v, env)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Started %s (pid %d)\n", v, h.PID())

			select {
			case <-h.Done():
			case <-cmd.Context().Done():
				fmt.Fprintln(out, "Stopping...")
				ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
				defer cancel()
				if err := h.Stop(ctx); err != nil {
					return fmt.Errorf("stop %s: %w", v, err)
				}
			}
			return reportExit(cmd, h.Result())
		},
	}
	cmd.Flags().StringArrayVarP(&envFlags, "env", "e", nil, "set a variable for the game (KEY=VALUE, repeatable)")
	return cmd
}

func parseEnvFlags(flags []string) (map[string]string, error) {
	env := make(map[string]string, len(flags))
	for _, kv := range flags {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env %q, expected KEY=VALUE", kv)
		}
		env[k] = v
	}
	return env, nil
}

func reportExit(cmd *cobra.Command, ev launch.Event) error {
	out := cmd.OutOrStdout()
	switch ev.Kind {
	case launch.Crashed:
		fmt.Fprintln(out, color.RedString("✗ %s crashed", ev.Version))
		fmt.Fprintln(out, ev.Diagnostic)
		return fmt.Errorf("%s exited with code %d", ev.Version, ev.ExitCode)
	case launch.Stopped:
		fmt.Fprintln(out, color.YellowString("%s stopped", ev.Version))
	default:
		fmt.Fprintln(out, color.GreenString("%s exited", ev.Version))
	}
	return nil
}
