package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/openmined/s3ops/internal/operation"
)

type outcome int

const (
	outcomeNone outcome = iota
	outcomeCompleted
	outcomeFailed
	outcomeCancelled
)

// run tracks the sub-tasks of one operation and decides when its handle
// reaches a terminal state.
type run struct {
	h   *operation.Handle
	seq int

	mu          sync.Mutex
	outstanding int // submitted and not yet finished, queued or executing
	inflight    int // executing
	interrupted bool
	fatal       *operation.ErrorEntry
	done        bool
}

// settleLocked picks the terminal outcome once nothing is executing.
// Expects r.mu to be held.
func (r *run) settleLocked() outcome {
	if r.done || r.inflight > 0 {
		return outcomeNone
	}
	switch {
	case r.fatal != nil:
		r.done = true
		return outcomeFailed
	case r.h.CancelRequested() && (r.outstanding > 0 || r.interrupted):
		r.done = true
		return outcomeCancelled
	case r.outstanding == 0:
		r.done = true
		return outcomeCompleted
	}
	return outcomeNone
}

// spawn submits a sub-task of r. Called before the first task starts or from
// inside a running task of r, so the operation can not settle in between.
func (e *Engine) spawn(r *run, label string, fn func(ctx context.Context)) {
	r.mu.Lock()
	r.outstanding++
	r.mu.Unlock()
	e.pool.submit(&task{run: r, label: label, fn: fn})
}

func (e *Engine) execute(t *task) {
	r := t.run
	if !e.begin(r) {
		return
	}
	t.fn(e.ctx)
	e.end(r)
}

// begin is the cancellation checkpoint in front of every sub-task.
func (e *Engine) begin(r *run) bool {
	r.mu.Lock()
	if r.done || r.fatal != nil || r.h.CancelRequested() {
		r.outstanding--
		if !r.done {
			r.interrupted = true
		}
		result := r.settleLocked()
		r.mu.Unlock()
		e.finalize(r, result)
		return false
	}
	r.inflight++
	if r.h.Start() {
		slog.Debug("engine", "op", r.h.ID(), "kind", r.h.Kind(), "state", operation.StateRunning)
	}
	r.mu.Unlock()
	return true
}

func (e *Engine) end(r *run) {
	r.mu.Lock()
	r.inflight--
	r.outstanding--
	result := r.settleLocked()
	r.mu.Unlock()
	e.finalize(r, result)
}

// abort records the fatal error of r; the first one wins. Failures caused by
// the engine shutting down count as an interruption instead.
func (e *Engine) abort(r *run, entry operation.ErrorEntry) {
	r.mu.Lock()
	if e.ctx.Err() != nil && r.h.CancelRequested() {
		r.interrupted = true
	} else if r.fatal == nil {
		r.fatal = &entry
	}
	r.mu.Unlock()
}

// interrupt marks r as stopped early at a cancellation checkpoint.
func (e *Engine) interrupt(r *run) {
	r.mu.Lock()
	r.interrupted = true
	r.mu.Unlock()
}

// cancelIdle finalizes r right away when none of its sub-tasks is executing.
func (e *Engine) cancelIdle(r *run) {
	r.mu.Lock()
	result := outcomeNone
	if !r.done && r.inflight == 0 {
		r.done = true
		result = outcomeCancelled
	}
	r.mu.Unlock()
	e.finalize(r, result)
}

func (e *Engine) finalize(r *run, result outcome) {
	var ok bool
	switch result {
	case outcomeNone:
		return
	case outcomeCompleted:
		ok = r.h.Complete()
	case outcomeFailed:
		ok = r.h.Fail(*r.fatal)
	case outcomeCancelled:
		ok = r.h.Cancel()
	}

	e.pool.purge(r)
	e.registry.retire(r)
	if !ok {
		return
	}

	snap := r.h.Snapshot()
	e.cfg.metrics.OperationFinished(snap.Kind, snap.State, snap.Duration())
	slog.Info("engine", "op", snap.ID, "kind", snap.Kind, "state", snap.State,
		"completed", snap.CompletedUnits, "total", snap.TotalUnits, "skipped", snap.SkippedUnits, "errors", len(snap.Errors))
	if e.cfg.onTerminal != nil {
		e.cfg.onTerminal(snap)
	}
}
