package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newVersionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List versions available to install",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			available, err := a.manager.Available(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(available) == 0 {
				fmt.Fprintln(out, "No versions available.")
				return nil
			}

			t := newTable(cmd)
			t.AppendHeader(table.Row{"Version", "Name", "Size", "Status"})
			for _, d := range available {
				status := ""
				if _, ok := a.manager.Record(d.Version); ok {
					status = color.GreenString("installed")
				} else if d.Beta {
					status = color.YellowString("beta")
				}
				t.AppendRow(table.Row{d.Version, d.DisplayName(), humanize.IBytes(uint64(d.Size)), status})
			}
			t.Render()
			return nil
		},
	}
}

func newTable(cmd *cobra.Command) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	return t
}
