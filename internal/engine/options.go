package engine

import (
	"time"

	"github.com/openmined/s3ops/internal/operation"
)

const (
	DefaultWorkers      = 4
	DefaultListPageSize = 1000
	DefaultRetention    = 256
)

// TerminalHook receives the final snapshot of every operation.
type TerminalHook func(snap operation.Snapshot)

type config struct {
	workers        int
	retry          RetryPolicy
	listPageSize   int32
	maxListEntries int
	retention      int
	metrics        Metrics
	onTerminal     TerminalHook
}

type Option func(*config)

// WithWorkers sets the size of the worker pool
func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *config) {
		c.retry = p
	}
}

// WithListPageSize sets the number of keys requested per listing page
func WithListPageSize(n int32) Option {
	return func(c *config) {
		if n > 0 {
			c.listPageSize = n
		}
	}
}

// WithMaxListEntries caps the entries a list operation assembles.
// The result then carries a continuation token. Zero means no cap.
func WithMaxListEntries(n int) Option {
	return func(c *config) {
		c.maxListEntries = n
	}
}

// WithRetention sets how many terminal handles are kept for polling
func WithRetention(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.retention = n
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(c *config) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithTerminalHook(hook TerminalHook) Option {
	return func(c *config) {
		c.onTerminal = hook
	}
}

func defaultConfig() *config {
	return &config{
		workers:      DefaultWorkers,
		retry:        DefaultRetryPolicy(),
		listPageSize: DefaultListPageSize,
		retention:    DefaultRetention,
		metrics:      noopMetrics{},
	}
}

// Metrics observes engine activity.
type Metrics interface {
	OperationStarted(kind operation.Kind)
	OperationFinished(kind operation.Kind, state operation.State, elapsed time.Duration)
	GatewayCall(call string, elapsed time.Duration, err error)
	QueueDepth(n int)
}

type noopMetrics struct{}

func (noopMetrics) OperationStarted(operation.Kind)                                  {}
func (noopMetrics) OperationFinished(operation.Kind, operation.State, time.Duration) {}
func (noopMetrics) GatewayCall(string, time.Duration, error)                         {}
func (noopMetrics) QueueDepth(int)                                                   {}
