package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/s3ops/internal/config"
	"github.com/openmined/s3ops/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
)

var (
	redText    = color.New(color.FgHiRed, color.Bold).SprintFunc()
	greenText  = color.New(color.FgHiGreen).SprintFunc()
	yellowText = color.New(color.FgHiYellow).SprintFunc()
	cyanText   = color.New(color.FgHiCyan).SprintFunc()
)

func main() {
	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, redText("Error:"), err)
	}
	os.Exit(exitCode(err))
}

// execute runs the CLI with args and always releases what the command opened.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts := newRootOptions()
	root := newRootCmd(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cerr := opts.close(); err == nil {
		err = cerr
	}
	return err
}

// configFlags maps viper keys to the persistent flags that override them.
var configFlags = map[string]string{
	"driver":       "driver",
	"endpoint":     "endpoint",
	"region":       "region",
	"access_key":   "access-key",
	"secret_key":   "secret-key",
	"path_style":   "path-style",
	"workers":      "workers",
	"journal_path": "journal",
	"log_file":     "log-file",
	"log_level":    "log-level",
	"metrics_addr": "metrics-addr",
}

func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	// config path
	if cmd.Flags().Changed("config") {
		configFilePath, _ := cmd.Flags().GetString("config")
		v.SetConfigFile(configFilePath)
	} else {
		v.AddConfigPath(config.DefaultConfigDir)
		v.AddConfigPath(filepath.Join(home, ".config", "s3ops"))
		v.SetConfigName(configFileName)
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	defaults := config.Default()
	v.SetDefault("driver", defaults.Driver)
	v.SetDefault("region", defaults.Region)
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("list_page_size", defaults.ListPageSize)
	v.SetDefault("max_list_entries", defaults.MaxListEntries)
	v.SetDefault("retry_attempts", defaults.RetryAttempts)
	v.SetDefault("retry_backoff", defaults.RetryBackoff)
	v.SetDefault("retention", defaults.Retention)
	v.SetDefault("journal_path", defaults.JournalPath)
	v.SetDefault("log_level", defaults.LogLevel)

	for key, flag := range configFlags {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	v.SetEnvPrefix("S3OPS")
	v.AutomaticEnv()

	cfg := &config.Config{
		Driver:         v.GetString("driver"),
		Endpoint:       v.GetString("endpoint"),
		Region:         v.GetString("region"),
		AccessKey:      v.GetString("access_key"),
		SecretKey:      v.GetString("secret_key"),
		PathStyle:      v.GetBool("path_style"),
		Workers:        v.GetInt("workers"),
		ListPageSize:   v.GetInt32("list_page_size"),
		MaxListEntries: v.GetInt("max_list_entries"),
		RetryAttempts:  v.GetInt("retry_attempts"),
		RetryBackoff:   v.GetDuration("retry_backoff"),
		Retention:      v.GetInt("retention"),
		JournalPath:    v.GetString("journal_path"),
		LogFile:        v.GetString("log_file"),
		LogLevel:       v.GetString("log_level"),
		MetricsAddr:    v.GetString("metrics_addr"),
		Path:           v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs a tint console handler and, when a log file is
// configured, a debug level text handler writing into it.
func setupLogging(cfg *config.Config, console io.Writer) (io.Closer, error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	handlers := []slog.Handler{
		tint.NewHandler(console, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(console),
		}),
	}

	var file *os.File
	if cfg.LogFile != "" {
		if err := utils.EnsureParent(cfg.LogFile); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err = os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(handlers...)))
	if file == nil {
		return nil, nil
	}
	return file, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
