package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmined/s3ops/internal/engine"
	"github.com/openmined/s3ops/internal/gateway"
	"github.com/openmined/s3ops/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigDir   = filepath.Join(home, ".s3ops")
	DefaultConfigPath  = filepath.Join(DefaultConfigDir, "config.json")
	DefaultJournalPath = filepath.Join(DefaultConfigDir, "journal.db")
	DefaultLogFilePath = filepath.Join(DefaultConfigDir, "logs", "s3ops.log")
)

var (
	ErrInvalidWorkers  = errors.New("workers must be positive")
	ErrInvalidLogLevel = errors.New("invalid log level")
)

type Config struct {
	Driver    string `json:"driver" mapstructure:"driver"`
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	Region    string `json:"region" mapstructure:"region"`
	AccessKey string `json:"access_key" mapstructure:"access_key"`
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`
	PathStyle bool   `json:"path_style" mapstructure:"path_style"`

	Workers        int           `json:"workers" mapstructure:"workers"`
	ListPageSize   int32         `json:"list_page_size" mapstructure:"list_page_size"`
	MaxListEntries int           `json:"max_list_entries" mapstructure:"max_list_entries"`
	RetryAttempts  int           `json:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoff   time.Duration `json:"retry_backoff" mapstructure:"retry_backoff"`
	Retention      int           `json:"retention" mapstructure:"retention"`

	JournalPath string `json:"journal_path" mapstructure:"journal_path"`
	LogFile     string `json:"log_file" mapstructure:"log_file"`
	LogLevel    string `json:"log_level" mapstructure:"log_level"`
	MetricsAddr string `json:"metrics_addr" mapstructure:"metrics_addr"`

	Path string `json:"-" mapstructure:"-"`
}

func Default() *Config {
	retry := engine.DefaultRetryPolicy()
	return &Config{
		Driver:        gateway.DriverS3,
		Region:        "us-east-1",
		Workers:       engine.DefaultWorkers,
		ListPageSize:  engine.DefaultListPageSize,
		RetryAttempts: retry.MaxAttempts,
		RetryBackoff:  retry.InitialBackoff,
		Retention:     engine.DefaultRetention,
		JournalPath:   DefaultJournalPath,
		LogLevel:      "warn",
		Path:          DefaultConfigPath,
	}
}

// Validate normalizes paths and checks every field the engine and gateway depend on.
func (c *Config) Validate() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	c.Endpoint = strings.TrimRight(strings.TrimSpace(c.Endpoint), "/")

	if err := c.Gateway().Validate(); err != nil {
		return err
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Workers)
	}
	if c.ListPageSize <= 0 || c.ListPageSize > gateway.MaxDeleteBatch {
		return fmt.Errorf("list page size must be between 1 and %d", gateway.MaxDeleteBatch)
	}
	if c.MaxListEntries < 0 {
		return errors.New("max list entries must not be negative")
	}
	if c.RetryAttempts <= 0 {
		return errors.New("retry attempts must be positive")
	}
	if c.Retention <= 0 {
		return errors.New("retention must be positive")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	for _, p := range []*string{&c.Path, &c.JournalPath, &c.LogFile} {
		if *p == "" {
			continue
		}
		resolved, err := utils.ResolvePath(*p)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", *p, err)
		}
		*p = resolved
	}
	return nil
}

// Gateway returns the storage driver settings.
func (c *Config) Gateway() *gateway.Config {
	return &gateway.Config{
		Driver:    c.Driver,
		Endpoint:  c.Endpoint,
		Region:    c.Region,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		PathStyle: c.PathStyle,
	}
}

// EngineOptions maps the engine settings to engine options.
func (c *Config) EngineOptions() []engine.Option {
	retry := engine.DefaultRetryPolicy()
	retry.MaxAttempts = c.RetryAttempts
	if c.RetryBackoff > 0 {
		retry.InitialBackoff = c.RetryBackoff
	}
	return []engine.Option{
		engine.WithWorkers(c.Workers),
		engine.WithListPageSize(c.ListPageSize),
		engine.WithMaxListEntries(c.MaxListEntries),
		engine.WithRetryPolicy(retry),
		engine.WithRetention(c.Retention),
	}
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
	}
	return level, nil
}
