// Package worker runs per-competitor refresh jobs concurrently with
// staggered starts and shared rate limiting. Staggering spreads load on
// third-party backends; it does not serialize job logic.
package worker

import (
	"context"
	"sync"
	"time"
)

// Job is a unit of work executed by the pool.
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is the outcome of one job.
type Result interface {
	GetError() error
}

// Pool executes jobs on a fixed number of workers. Submissions are
// staggered by a configurable delay between job starts.
type Pool struct {
	workers   int
	stagger   time.Duration
	jobQueue  chan Job
	results   chan Result
	wg        sync.WaitGroup
	closeOnce sync.Once

	startMu   sync.Mutex
	lastStart time.Time
}

// NewPool creates a pool with the given worker count and stagger delay.
func NewPool(workers int, stagger time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		workers:  workers,
		stagger:  stagger,
		jobQueue: make(chan Job, workers*2),
		results:  make(chan Result, workers*2),
	}
}

// Start launches the workers. Jobs observe ctx for cancellation.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.waitForSlot(ctx)
			result := job.Execute(ctx)
			select {
			case p.results <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}

// waitForSlot enforces the stagger delay between job starts across all
// workers.
func (p *Pool) waitForSlot(ctx context.Context) {
	if p.stagger <= 0 {
		return
	}
	p.startMu.Lock()
	now := time.Now()
	next := p.lastStart.Add(p.stagger)
	if next.Before(now) {
		next = now
	}
	p.lastStart = next
	p.startMu.Unlock()

	if wait := time.Until(next); wait > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
}

// Submit queues a job. Blocks when the queue is full.
func (p *Pool) Submit(ctx context.Context, job Job) {
	select {
	case <-ctx.Done():
	case p.jobQueue <- job:
	}
}

// Wait closes the queue, waits for all jobs, and returns their results.
func (p *Pool) Wait() []Result {
	close(p.jobQueue)

	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	var results []Result
	for result := range p.results {
		results = append(results, result)
	}
	return results
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
