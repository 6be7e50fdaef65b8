package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newBucketsCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "buckets",
		Short: "List buckets visible to the configured credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.open(cmd.Context())
			if err != nil {
				return err
			}

			buckets, err := a.gw.ListBuckets(cmd.Context())
			if err != nil {
				return err
			}
			if len(buckets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), gray.Render("no buckets"))
				return nil
			}

			t := newTable("NAME", "CREATED")
			for _, b := range buckets {
				created := "-"
				if !b.CreationDate.IsZero() {
					created = humanize.Time(b.CreationDate)
				}
				t.Row(b.Name, created)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.HiddenBorder()).
		BorderHeader(false).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().PaddingRight(2)
			if row == table.HeaderRow {
				return style.Bold(true)
			}
			return style
		}).
		Headers(headers...)
}
