package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/openmined/s3ops/internal/operation"
	"github.com/spf13/cobra"
)

const listTimeFormat = "2006-01-02 15:04:05"

func newListCmd(o *rootOptions) *cobra.Command {
	var (
		token  string
		all    bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "ls BUCKET [PREFIX]",
		Short: "List one level of a bucket",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.open(cmd.Context())
			if err != nil {
				return err
			}

			bucket, prefix := args[0], ""
			if len(args) > 1 {
				prefix = args[1]
			}

			out := cmd.OutOrStdout()
			for {
				id := a.engine.StartList(bucket, prefix, token)
				snap, err := o.follow(cmd, a.engine, id, true)
				if err != nil {
					return err
				}
				if snap.State != operation.StateCompleted {
					printSummary(cmd.ErrOrStderr(), snap)
					return outcomeError(snap)
				}

				res := snap.ListResult()
				if asJSON {
					if err := json.NewEncoder(out).Encode(res); err != nil {
						return err
					}
				} else {
					printListing(out, res)
				}

				token = res.NextToken
				if token == "" || !all {
					break
				}
			}

			if token != "" && !asJSON {
				fmt.Fprintln(out, gray.Render("more entries: --continue "+token))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "continue", "", "continuation token from a previous listing")
	cmd.Flags().BoolVar(&all, "all", false, "follow continuation tokens until the listing is exhausted")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the listing as JSON")
	return cmd
}

func printListing(w io.Writer, res *operation.ListResult) {
	for _, p := range res.Prefixes {
		fmt.Fprintf(w, "%19s %10s  %s\n", "", "PRE", cyan.Render(p))
	}
	for _, obj := range res.Objects {
		fmt.Fprintf(w, "%19s %10s  %s\n", obj.LastModified.Local().Format(listTimeFormat), humanize.Bytes(uint64(obj.Size)), obj.Key)
	}
}

func newInfoCmd(o *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info BUCKET KEY",
		Short: "Show the metadata of one object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.open(cmd.Context())
			if err != nil {
				return err
			}

			info, err := a.gw.HeadObject(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(info)
			}

			field := func(name, value string) {
				fmt.Fprintf(out, "%-15s %s\n", lightGray.Render(name+":"), value)
			}
			field("Key", info.Key)
			field("Size", fmt.Sprintf("%s (%s bytes)", humanize.Bytes(uint64(info.Size)), humanize.Comma(info.Size)))
			field("Content-Type", info.ContentType)
			field("ETag", info.ETag)
			field("Last-Modified", info.LastModified.Local().Format(time.RFC1123))
			if info.StorageClass != "" {
				field("Storage-Class", info.StorageClass)
			}

			names := make([]string, 0, len(info.Metadata))
			for name := range info.Metadata {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				field("x-amz-meta-"+name, info.Metadata[name])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the metadata as JSON")
	return cmd
}
