package operation

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Handle is the live progress record of one operation. Workers mutate it through
// its methods; readers take Snapshots. Terminal states are final: every mutator
// is a no-op once the handle has finished.
type Handle struct {
	id          string
	kind        Kind
	bucket      string
	description string
	createdAt   time.Time

	cancelRequested atomic.Bool

	mu               sync.RWMutex
	state            State
	totalUnits       int64
	totalKnown       bool
	completedUnits   int64
	skippedUnits     int64
	totalBytes       int64
	transferredBytes int64
	currentItem      string
	errors           []ErrorEntry
	fatal            *ErrorEntry
	items            []string
	list             *ListResult
	startedAt        time.Time
	finishedAt       time.Time
}

func New(kind Kind, bucket, description string) *Handle {
	return &Handle{
		id:          "op-" + uuid.NewString(),
		kind:        kind,
		bucket:      bucket,
		description: description,
		createdAt:   time.Now(),
		state:       StatePending,
	}
}

func (h *Handle) ID() string {
	return h.id
}

func (h *Handle) Kind() Kind {
	return h.kind
}

func (h *Handle) Bucket() string {
	return h.bucket
}

func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// RequestCancel raises the cancel flag. It returns false if the handle is already
// terminal or the flag was already set.
func (h *Handle) RequestCancel() bool {
	if h.State().IsTerminal() {
		return false
	}
	return h.cancelRequested.CompareAndSwap(false, true)
}

func (h *Handle) CancelRequested() bool {
	return h.cancelRequested.Load()
}

// Start moves a pending handle to running.
func (h *Handle) Start() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StatePending {
		return false
	}
	h.state = StateRunning
	h.startedAt = time.Now()
	return true
}

// SetTotal sets the unit total. known=false means more units may still be discovered.
func (h *Handle) SetTotal(n int64, known bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.IsTerminal() {
		return
	}
	h.totalUnits = n
	h.totalKnown = known
}

// AddTotal grows the total while it is still being discovered.
func (h *Handle) AddTotal(n int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.IsTerminal() || h.totalKnown {
		return
	}
	h.totalUnits += n
}

func (h *Handle) AddCompleted(n int64) {
	if n <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.IsTerminal() {
		return
	}
	h.completedUnits += n
	if h.totalKnown && h.completedUnits > h.totalUnits {
		h.completedUnits = h.totalUnits
	}
}

// FinishUnits accounts n finished units together with their successful items
// and item errors, so a snapshot never shows an error for an uncounted unit.
func (h *Handle) FinishUnits(n int64, items []string, errs ...ErrorEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.IsTerminal() {
		return
	}
	h.errors = append(h.errors, errs...)
	h.items = append(h.items, items...)
	h.completedUnits += max(n, 0)
	if h.totalKnown && h.completedUnits > h.totalUnits {
		h.completedUnits = h.totalUnits
	}
}

func (h *Handle) SetCurrentItem(item string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.IsTerminal() {
		return
	}
	h.currentItem = item
}

func (h *Handle) AddTotalBytes(n int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.IsTerminal() {
		return
	}
	h.totalBytes += n
}

// AddBytes moves the transferred byte counter; negative deltas rewind it.
func (h *Handle) AddBytes(delta int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.IsTerminal() {
		return
	}
	h.transferredBytes += delta
	if h.transferredBytes < 0 {
		h.transferredBytes = 0
	}
}

func (h *Handle) RecordError(entries ...ErrorEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.IsTerminal() {
		return
	}
	h.errors = append(h.errors, entries...)
}

// AddItem records successfully processed items for the result.
func (h *Handle) AddItem(items ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.IsTerminal() {
		return
	}
	h.items = append(h.items, items...)
}

func (h *Handle) SetListResult(r *ListResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.IsTerminal() {
		return
	}
	h.list = r
}

// Complete finishes the handle successfully, possibly with recorded item errors.
func (h *Handle) Complete() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.IsTerminal() {
		return false
	}
	if h.completedUnits < h.totalUnits {
		slog.Warn("operation", "op", h.id, "kind", h.kind, "completed", h.completedUnits, "total", h.totalUnits, "uncounted", h.totalUnits-h.completedUnits)
	}
	h.totalUnits = max(h.totalUnits, h.completedUnits)
	h.completedUnits = h.totalUnits
	h.totalKnown = true
	h.finish(StateCompleted)
	return true
}

// Fail finishes the handle with a top-level error, which is also appended to the error list.
func (h *Handle) Fail(entry ErrorEntry) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.IsTerminal() {
		return false
	}
	h.errors = append(h.errors, entry)
	h.fatal = &entry
	h.finish(StateFailed)
	return true
}

// Cancel finishes the handle as cancelled. Units that were never attempted move
// from the total to the skipped counter.
func (h *Handle) Cancel() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.IsTerminal() {
		return false
	}
	if h.totalUnits > h.completedUnits {
		h.skippedUnits = h.totalUnits - h.completedUnits
	}
	h.totalUnits = h.completedUnits
	h.totalKnown = true
	h.finish(StateCancelled)
	return true
}

func (h *Handle) finish(state State) {
	h.state = state
	h.currentItem = ""
	h.finishedAt = time.Now()
}

// Snapshot returns a consistent copy of the handle.
func (h *Handle) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Snapshot{
		ID:               h.id,
		Kind:             h.kind,
		Bucket:           h.bucket,
		Description:      h.description,
		State:            h.state,
		TotalUnits:       h.totalUnits,
		TotalKnown:       h.totalKnown,
		CompletedUnits:   h.completedUnits,
		SkippedUnits:     h.skippedUnits,
		TotalBytes:       h.totalBytes,
		TransferredBytes: h.transferredBytes,
		CurrentItem:      h.currentItem,
		Errors:           slices.Clone(h.errors),
		CancelRequested:  h.cancelRequested.Load(),
		CreatedAt:        h.createdAt,
		StartedAt:        h.startedAt,
		FinishedAt:       h.finishedAt,
	}
	if h.fatal != nil {
		fatal := *h.fatal
		s.Fatal = &fatal
	}
	if h.state == StateCompleted || h.state == StateCancelled {
		s.Result = h.result()
	}
	return s
}

// result expects h.mu to be held.
func (h *Handle) result() any {
	switch h.kind {
	case KindList:
		if h.list == nil {
			return nil
		}
		r := *h.list
		r.Objects = slices.Clone(h.list.Objects)
		r.Prefixes = slices.Clone(h.list.Prefixes)
		return &r
	case KindUpload, KindDownload:
		return &TransferResult{Items: slices.Clone(h.items)}
	default:
		return &DeleteResult{Deleted: slices.Clone(h.items)}
	}
}
