package main

import (
	"github.com/openmined/s3ops/internal/localfs"
	"github.com/spf13/cobra"
)

func newUploadCmd(o *rootOptions) *cobra.Command {
	var excludes []string

	cmd := &cobra.Command{
		Use:   "upload BUCKET PREFIX PATH|GLOB...",
		Short: "Upload files, directories or glob matches under a key prefix",
		Long: `Upload files, directories or glob matches under a key prefix.

A file is stored as PREFIX/<name>. A directory keeps its layout under
PREFIX/<directory name>/. A glob such as 'photos/**/*.jpg' keeps the
layout below its static base directory.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := localfs.ExpandSources(args[1], args[2:], excludes...)
			if err != nil {
				return err
			}

			a, err := o.open(cmd.Context())
			if err != nil {
				return err
			}
			return o.runOperation(cmd, a.engine, a.engine.StartUploadItems(args[0], items))
		},
	}

	cmd.Flags().StringSliceVarP(&excludes, "exclude", "x", nil, "skip local paths matching this pattern (repeatable)")
	return cmd
}

func newDownloadCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "download BUCKET DEST_DIR KEY...",
		Short: "Download objects into a local directory, keeping their key paths",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.open(cmd.Context())
			if err != nil {
				return err
			}
			return o.runOperation(cmd, a.engine, a.engine.StartDownload(args[0], args[2:], args[1]))
		},
	}
}
