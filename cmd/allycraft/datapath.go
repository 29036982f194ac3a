package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newDataPathCmd(a *app) *cobra.Command {
	show := func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, a.manager.DataPath())
		if a.manager.CustomDataPath() == "" {
			fmt.Fprintln(out, color.New(color.Faint).Sprint("(default)"))
		}
		return nil
	}

	cmd := &cobra.Command{
		Use:   "data-path",
		Short: "Show or change where version data is stored",
		Args:  cobra.NoArgs,
		RunE:  show,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current data root",
		Args:  cobra.NoArgs,
		RunE:  show,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <path>",
		Short: "Move every version's data to a new root",
		Long: `Move every installed version's data directory under a new root and
remember it for future installs.

The move is not atomic across versions. If it stops part way, versions
already moved stay at the new root and the rest stay where they were.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.manager.SetCustomDataPath(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓ Data path set to %s", a.manager.DataPath()))
			return nil
		},
	})
	return cmd
}
