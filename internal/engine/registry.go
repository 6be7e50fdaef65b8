package engine

import (
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/s3ops/internal/operation"
)

// registry holds active runs and a bounded set of terminal handles.
type registry struct {
	mu       sync.RWMutex
	seq      int
	closed   bool
	active   map[string]*run
	finished *lru.Cache[string, *operation.Handle]
}

func newRegistry(retention int) *registry {
	finished, err := lru.New[string, *operation.Handle](retention)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &registry{
		active:   make(map[string]*run),
		finished: finished,
	}
}

// add registers a new run; it returns false once the engine is closed.
func (reg *registry) add(h *operation.Handle) (*run, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.closed {
		reg.finished.Add(h.ID(), h)
		return nil, false
	}
	reg.seq++
	r := &run{h: h, seq: reg.seq}
	reg.active[h.ID()] = r
	return r, true
}

func (reg *registry) retire(r *run) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.active[r.h.ID()]; !ok {
		return
	}
	delete(reg.active, r.h.ID())
	reg.finished.Add(r.h.ID(), r.h)
}

// lookup returns the handle for id and its run while it is active.
func (reg *registry) lookup(id string) (*operation.Handle, *run) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	if r, ok := reg.active[id]; ok {
		return r.h, r
	}
	if h, ok := reg.finished.Peek(id); ok {
		return h, nil
	}
	return nil, nil
}

func (reg *registry) forget(id string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.finished.Remove(id)
}

// activeRuns returns the active runs in admission order.
func (reg *registry) activeRuns() []*run {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	runs := make([]*run, 0, len(reg.active))
	for _, r := range reg.active {
		runs = append(runs, r)
	}
	slices.SortFunc(runs, func(a, b *run) int { return a.seq - b.seq })
	return runs
}

// close refuses further runs and returns the ones still active.
func (reg *registry) close() []*run {
	reg.mu.Lock()
	reg.closed = true
	reg.mu.Unlock()
	return reg.activeRuns()
}
