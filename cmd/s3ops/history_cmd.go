package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var errNoJournal = errors.New("operation journal is not available; set --journal")

func newHistoryCmd(o *rootOptions) *cobra.Command {
	var (
		limit  int
		keep   int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently finished operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.open(cmd.Context())
			if err != nil {
				return err
			}
			if a.journal == nil {
				return errNoJournal
			}

			out := cmd.OutOrStdout()
			if keep > 0 {
				pruned, err := a.journal.Prune(cmd.Context(), keep)
				if err != nil {
					return err
				}
				if pruned > 0 {
					fmt.Fprintln(out, gray.Render(fmt.Sprintf("pruned %d entries", pruned)))
				}
			}

			entries, err := a.journal.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(out).Encode(entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, gray.Render("no finished operations"))
				return nil
			}

			t := newTable("ID", "KIND", "BUCKET", "STATE", "DONE", "ERRORS", "FINISHED")
			for _, e := range entries {
				t.Row(
					shortID(e.ID),
					string(e.Kind),
					e.Bucket,
					stateLabel(e.State),
					humanize.Comma(e.CompletedUnits)+"/"+humanize.Comma(e.TotalUnits),
					humanize.Comma(int64(len(e.Errors))),
					humanize.Time(e.FinishedAt),
				)
			}
			fmt.Fprintln(out, t.Render())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show, 0 for all")
	cmd.Flags().IntVar(&keep, "prune", 0, "keep only this many most recent entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the entries as JSON")
	return cmd
}
