package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newSpaceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "space",
		Short: "Show free space and per-version disk usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.manager.StorageInfo(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Data path: %s\n", info.DataPath)
			fmt.Fprintf(out, "Free:      %s\n", humanize.IBytes(info.Free))
			if len(info.Versions) == 0 {
				return nil
			}

			t := newTable(cmd)
			t.AppendHeader(table.Row{"Version", "Install", "Data", "Total"})
			var total int64
			for _, u := range info.Versions {
				total += u.Total()
				t.AppendRow(table.Row{
					u.Version,
					humanize.IBytes(uint64(u.InstallSize)),
					humanize.IBytes(uint64(u.DataSize)),
					humanize.IBytes(uint64(u.Total())),
				})
			}
			t.AppendFooter(table.Row{"", "", "", humanize.IBytes(uint64(total))})
			t.Render()
			return nil
		},
	}
}
