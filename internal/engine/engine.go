package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/s3ops/internal/gateway"
	"github.com/openmined/s3ops/internal/operation"
)

var (
	ErrOperationNotFound = errors.New("engine: operation not found")
	ErrEngineClosed      = errors.New("engine: closed")
)

const waitPollInterval = 50 * time.Millisecond

// Engine runs storage operations on a bounded worker pool and tracks them
// through handles the caller polls.
type Engine struct {
	gw       gateway.Gateway
	cfg      *config
	ctx      context.Context
	cancel   context.CancelFunc
	pool     *pool
	registry *registry
}

func New(gw gateway.Gateway, opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		gw:       gw,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		registry: newRegistry(cfg.retention),
	}
	e.pool = newPool(cfg.workers, cfg.metrics, e.execute)

	slog.Debug("engine", "workers", cfg.workers, "retryAttempts", cfg.retry.MaxAttempts, "pageSize", cfg.listPageSize)
	return e
}

// start registers h and submits its first task. It always returns the handle id.
func (e *Engine) start(h *operation.Handle, label string, fn func(ctx context.Context, r *run)) string {
	r, ok := e.registry.add(h)
	if !ok {
		h.Fail(operation.NewErrorEntry(h.Bucket(), gateway.NewError(gateway.KindPrecondition, string(h.Kind()), h.Bucket(), "", ErrEngineClosed)))
		return h.ID()
	}

	e.cfg.metrics.OperationStarted(h.Kind())
	slog.Info("engine", "op", h.ID(), "kind", h.Kind(), "bucket", h.Bucket(), "state", operation.StatePending)
	e.spawn(r, label, func(ctx context.Context) { fn(ctx, r) })
	return h.ID()
}

// RequestCancel asks the operation to stop at its next checkpoint. It returns
// false for unknown ids and operations that already finished.
func (e *Engine) RequestCancel(id string) bool {
	h, r := e.registry.lookup(id)
	if h == nil || r == nil || h.State().IsTerminal() {
		return false
	}
	if h.RequestCancel() {
		slog.Info("engine", "op", id, "cancel", "requested")
	}
	e.cancelIdle(r)
	return true
}

// GetHandle returns a consistent snapshot of the operation.
func (e *Engine) GetHandle(id string) (operation.Snapshot, bool) {
	h, _ := e.registry.lookup(id)
	if h == nil {
		return operation.Snapshot{}, false
	}
	return h.Snapshot(), true
}

// ListActiveHandles returns the ids of non-terminal operations in creation order.
func (e *Engine) ListActiveHandles() []string {
	runs := e.registry.activeRuns()
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.h.ID())
	}
	return ids
}

// Forget discards a terminal handle. Active handles are never discarded.
func (e *Engine) Forget(id string) bool {
	return e.registry.forget(id)
}

// Wait polls the operation until it is terminal or ctx is done.
func (e *Engine) Wait(ctx context.Context, id string) (operation.Snapshot, error) {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		snap, ok := e.GetHandle(id)
		if !ok {
			return operation.Snapshot{}, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
		}
		if snap.IsTerminal() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close cancels every active operation, interrupts in-flight gateway calls and
// waits for the workers to exit.
func (e *Engine) Close(ctx context.Context) error {
	active := e.registry.close()
	for _, r := range active {
		r.h.RequestCancel()
	}

	dropped := e.pool.close()
	e.cancel()
	err := e.pool.wait(ctx)

	// whatever is left was queued or interrupted
	for _, r := range active {
		r.mu.Lock()
		result := outcomeNone
		if !r.done {
			r.done = true
			result = outcomeCancelled
		}
		r.mu.Unlock()
		e.finalize(r, result)
	}

	slog.Info("engine", "closed", true, "cancelled", len(active), "dropped", dropped)
	return err
}
