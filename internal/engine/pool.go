package engine

import (
	"context"
	"sync"

	"github.com/openmined/s3ops/internal/queue"
)

// task is one schedulable unit of an operation: a preparation step, a file,
// a delete batch, an enumeration or a listing.
type task struct {
	run   *run
	label string
	fn    func(ctx context.Context)
}

// pool is a fixed set of workers draining a shared admission queue. Tasks are
// ordered by the admission sequence of their operation, then by submission order.
type pool struct {
	queue   *queue.PriorityQueue[*task]
	mu      sync.Mutex
	cond    *sync.Cond
	closed  bool
	wg      sync.WaitGroup
	metrics Metrics
}

func newPool(workers int, metrics Metrics, exec func(*task)) *pool {
	p := &pool{
		queue:   queue.NewPriorityQueue[*task](),
		metrics: metrics,
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				t, ok := p.next()
				if !ok {
					return
				}
				exec(t)
			}
		}()
	}
	return p
}

func (p *pool) submit(t *task) {
	p.mu.Lock()
	p.queue.Enqueue(t, t.run.seq)
	p.cond.Signal()
	p.mu.Unlock()
	p.metrics.QueueDepth(p.queue.Len())
}

// next blocks until a task is available or the pool is closed.
func (p *pool) next() (*task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.closed {
			return nil, false
		}
		if t, ok := p.queue.Dequeue(); ok {
			p.metrics.QueueDepth(p.queue.Len())
			return t, true
		}
		p.cond.Wait()
	}
}

// purge drops every queued task of r and returns how many were removed.
func (p *pool) purge(r *run) int {
	removed := p.queue.RemoveFunc(func(t *task) bool { return t.run == r })
	if len(removed) > 0 {
		p.metrics.QueueDepth(p.queue.Len())
	}
	return len(removed)
}

// close stops the workers after their current task and returns the number of
// queued tasks that were dropped.
func (p *pool) close() int {
	p.mu.Lock()
	p.closed = true
	dropped := p.queue.DequeueAll()
	p.cond.Broadcast()
	p.mu.Unlock()
	p.metrics.QueueDepth(0)
	return len(dropped)
}

func (p *pool) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
