package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/openmined/s3ops/internal/config"
	"github.com/openmined/s3ops/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const closeTimeout = 10 * time.Second

// rootOptions is the state shared by every command of one CLI invocation.
type rootOptions struct {
	v         *viper.Viper
	cfg       *config.Config
	app       *app
	logCloser io.Closer
	noTUI     bool
}

func newRootOptions() *rootOptions {
	return &rootOptions{v: viper.New()}
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "s3ops",
		Short:         "Run storage operations against S3 compatible buckets",
		Version:       version.Detailed(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts.v)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logCloser, err = setupLogging(cfg, cmd.ErrOrStderr())
			return err
		},
	}

	flags := cmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("config", "c", config.DefaultConfigPath, "config file")
	flags.String("driver", "", "storage driver: s3, minio or memory")
	flags.String("endpoint", "", "custom S3 endpoint URL")
	flags.String("region", "", "bucket region")
	flags.String("access-key", "", "access key id")
	flags.String("secret-key", "", "secret access key")
	flags.Bool("path-style", false, "force path-style addressing")
	flags.IntP("workers", "w", 0, "number of concurrent workers")
	flags.String("journal", "", "operation journal database")
	flags.String("log-file", "", "also write debug logs to this file")
	flags.String("log-level", "", "console log level: debug, info, warn or error")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address")
	flags.BoolVar(&opts.noTUI, "no-tui", false, "print plain progress lines instead of the progress view")

	cmd.AddCommand(
		newBucketsCmd(opts),
		newListCmd(opts),
		newInfoCmd(opts),
		newUploadCmd(opts),
		newDownloadCmd(opts),
		newRemoveCmd(opts),
		newEmptyCmd(opts),
		newHistoryCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// open builds the gateway and engine on first use.
func (o *rootOptions) open(ctx context.Context) (*app, error) {
	if o.app != nil {
		return o.app, nil
	}
	if o.cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	a, err := newApp(ctx, o.cfg)
	if err != nil {
		return nil, err
	}
	o.app = a
	return a, nil
}

// close stops the engine before the journal so that the last terminal hooks are recorded.
func (o *rootOptions) close() error {
	var errs []error
	if o.app != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		errs = append(errs, o.app.close(ctx))
		o.app = nil
	}
	if o.logCloser != nil {
		slog.SetDefault(slog.New(slog.DiscardHandler))
		errs = append(errs, o.logCloser.Close())
		o.logCloser = nil
	}
	return errors.Join(errs...)
}
