package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/openmined/s3ops/internal/utils"
	"github.com/spf13/cobra"
)

func newConfigCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with credentials masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *o.cfg
			cfg.AccessKey = utils.MaskSecret(cfg.AccessKey)
			cfg.SecretKey = utils.MaskSecret(cfg.SecretKey)

			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			source := cfg.Path
			if source == "" {
				source = "defaults"
			}
			fmt.Fprintln(out, gray.Render("# "+source))
			fmt.Fprintln(out, string(data))
			return nil
		},
	}
}
