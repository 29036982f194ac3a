package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/allycraft/allycraft/internal/install"
	"github.com/allycraft/allycraft/internal/version"
)

func newInstallCmd(a *app) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "install <version>",
		Short: "Download and install a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := a.descriptor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return runInstall(cmd, a, desc, quiet)
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print the result")
	return cmd
}

func runInstall(cmd *cobra.Command, a *app, desc version.Descriptor, quiet bool) error {
	out := cmd.OutOrStdout()
	op, err := a.manager.Install(cmd.Context(), desc)
	if err != nil {
		return err
	}

	lastPct, lastStage := -1, install.Stage(-1)
	for ev := range op.Events() {
		pct := int(ev.Percent)
		if quiet || ev.Stage.Terminal() || (pct == lastPct && ev.Stage == lastStage) {
			continue
		}
		lastPct, lastStage = pct, ev.Stage
		fmt.Fprintf(out, "[%3d%%] %s\n", pct, ev.Status)
	}

	// the pipeline has finished once the events channel is closed
	rec, err := op.Wait(context.Background())
	if err != nil {
		fmt.Fprintln(out, color.RedString("✗ %s", op.Last().Status))
		return err
	}
	fmt.Fprintln(out, color.GreenString("✓ Installed %s", desc.DisplayName()))
	fmt.Fprintf(out, "  files: %s\n  data:  %s\n", rec.InstallPath, rec.DataPath)
	return nil
}
