package gateway

import (
	"errors"
	"fmt"
	"net/url"
)

const (
	DriverS3     = "s3"
	DriverMinio  = "minio"
	DriverMemory = "memory"
)

var ErrUnknownDriver = errors.New("gateway: unknown driver")

type Config struct {
	Driver    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	// PathStyle forces path-style addressing; always on when Endpoint is set.
	PathStyle bool
}

func (c *Config) Validate() error {
	switch c.Driver {
	case DriverS3, "":
	case DriverMinio:
		if c.Endpoint == "" {
			return fmt.Errorf("gateway: minio driver requires an endpoint")
		}
	case DriverMemory:
		return nil
	default:
		return fmt.Errorf("%w %q", ErrUnknownDriver, c.Driver)
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil {
			return fmt.Errorf("gateway: invalid endpoint: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("gateway: endpoint must be http or https, got %q", c.Endpoint)
		}
	}
	return nil
}

// New builds the gateway selected by cfg.Driver.
func New(cfg *Config) (Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case DriverMemory:
		return NewMemoryGateway(), nil
	case DriverMinio:
		return NewMinioGateway(cfg)
	default:
		return NewS3Gateway(cfg)
	}
}
