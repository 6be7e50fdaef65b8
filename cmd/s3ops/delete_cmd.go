package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm BUCKET KEY...",
		Short: "Delete objects in batches of up to 1000 keys",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.open(cmd.Context())
			if err != nil {
				return err
			}
			return o.runOperation(cmd, a.engine, a.engine.StartDelete(args[0], args[1:]))
		},
	}
}

func newEmptyCmd(o *rootOptions) *cobra.Command {
	var confirm string

	cmd := &cobra.Command{
		Use:   "empty BUCKET --confirm BUCKET",
		Short: "Delete every object in a bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket := args[0]
			if confirm != bucket {
				return fmt.Errorf("refusing to empty %q: repeat the bucket name with --confirm %s", bucket, bucket)
			}

			a, err := o.open(cmd.Context())
			if err != nil {
				return err
			}
			return o.runOperation(cmd, a.engine, a.engine.StartEmptyBucket(bucket))
		},
	}

	cmd.Flags().StringVar(&confirm, "confirm", "", "bucket name, required to confirm the deletion")
	return cmd
}
