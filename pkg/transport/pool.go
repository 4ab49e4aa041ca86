package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Pool is a fixed-size worker pool draining a bounded queue of pending
// batches. Each worker drives one batch attempt to its next action and
// pushes any retry or split fragments back onto the queue itself; terminal
// results stream out on Results. Backpressure comes from the queue's
// bounded capacity: Submit blocks once it is full.
type Pool struct {
	client  *Client
	queue   chan *Batch
	results chan Result

	pending atomic.Int64
	mu      sync.Mutex
	closed  bool
	stop    chan struct{}
	quit    chan struct{}
	done    sync.WaitGroup
	drained chan struct{}
}

// DefaultWorkers is the worker count used when none is configured.
const DefaultWorkers = 8

// NewPool starts a pool of workers executing batches through the client.
// The pool runs until Shutdown is called.
func NewPool(client *Client, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}

	p := &Pool{
		client:  client,
		queue:   make(chan *Batch, queueSize),
		results: make(chan Result, queueSize),
		stop:    make(chan struct{}),
		quit:    make(chan struct{}),
		drained: make(chan struct{}),
	}

	p.done.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues a batch for execution, blocking while the queue is full.
// It fails once the pool is shutting down: cancellation granularity is
// "stop submitting new batches", in-flight work drains.
func (p *Pool) Submit(ctx context.Context, b *Batch) error {
	// The closed check and the pending increment happen under the same
	// lock Shutdown takes to flip the flag, so Shutdown's idle wait can
	// never observe zero while a submission is between the two.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return context.Canceled
	}
	p.pending.Add(1)
	p.mu.Unlock()
	select {
	case p.queue <- b:
		p.observeQueueDepth()
		return nil
	case <-ctx.Done():
		p.taskDone()
		return ctx.Err()
	case <-p.stop:
		p.taskDone()
		return context.Canceled
	}
}

// Results returns the stream of terminal per-item results. The channel is
// closed after Shutdown once all in-flight work has drained.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Shutdown stops accepting new batches, lets in-flight work drain, then
// closes the results channel. It blocks until the drain completes.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.drained
		return
	}
	p.closed = true
	p.mu.Unlock()

	// Wake anything blocked in Submit.
	close(p.stop)

	p.waitIdle()
	// The queue channel is never closed: a submission that passed the
	// closed check may still be sending into it. Workers leave through
	// quit once the pending count has drained to zero.
	close(p.quit)
	p.done.Wait()
	close(p.results)
	close(p.drained)
}

// waitIdle blocks until the pending work count reaches zero.
func (p *Pool) waitIdle() {
	for p.pending.Load() > 0 {
		time.Sleep(5 * time.Millisecond)
	}
}

func (p *Pool) worker() {
	defer p.done.Done()
	ctx := context.Background()
	for {
		select {
		case b := <-p.queue:
			p.observeQueueDepth()
			terminal, fragments := p.client.SendBatch(ctx, b)
			for _, res := range terminal {
				p.results <- res
			}
			for _, frag := range fragments {
				p.enqueue(frag)
			}
			p.taskDone()
		case <-p.quit:
			return
		}
	}
}

// enqueue pushes a fragment created by a worker back onto the queue. A
// blocking send from inside a worker could deadlock against a full queue,
// so the slow path hands the send to a new goroutine.
func (p *Pool) enqueue(b *Batch) {
	p.pending.Add(1)
	select {
	case p.queue <- b:
	default:
		go func() { p.queue <- b }()
	}
}

func (p *Pool) taskDone() {
	p.pending.Add(-1)
}

func (p *Pool) observeQueueDepth() {
	if p.client.opts.Metrics != nil {
		p.client.opts.Metrics.SetQueueDepth(len(p.queue))
	}
}
