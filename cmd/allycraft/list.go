package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			installed := a.manager.Installed()
			if len(installed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No versions installed.")
				return nil
			}

			t := newTable(cmd)
			t.AppendHeader(table.Row{"Version", "Name", "Installed", "Data"})
			for _, rec := range installed {
				t.AppendRow(table.Row{
					rec.Version(),
					rec.Descriptor.DisplayName(),
					rec.InstalledAt.Local().Format("2006-01-02 15:04"),
					rec.DataPath,
				})
			}
			t.Render()
			return nil
		},
	}
}
