package worker

import (
	"context"
	"sync"
)

// Job is one independent unit of work, one claim per job
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is the outcome of a job execution
type Result interface {
	GetError() error
}

// Pool executes jobs on a bounded set of workers. Jobs run under the
// caller's context, so a batch deadline or cancellation reaches every
// queued and in-flight claim. A blocked external call suspends only the
// issuing claim's worker, never the whole pool.
type Pool struct {
	workers    int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	doneOnce   sync.Once
	closeOnce  sync.Once
}

// NewPool creates a worker pool with the specified number of workers.
// Jobs observe ctx: cancelling it fast-fails remaining work rather than
// discarding it, so every submitted job still yields a result.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, workers*2),
		results:    make(chan Result, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the worker pool
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// worker drains the queue until Done closes it. A cancelled pool keeps
// draining: each remaining job executes against the dead context and
// fails fast, so no claim is dropped without a result.
func (p *Pool) worker() {
	defer p.wg.Done()

	for job := range p.jobQueue {
		p.results <- job.Execute(p.ctx)
	}
}

// Submit queues a job, blocking until a worker frees queue space. Pair
// with a concurrent Wait on large batches.
func (p *Pool) Submit(job Job) {
	p.jobQueue <- job
}

// Done signals that no further jobs will be submitted. Must be called by
// the goroutine that issued the last Submit.
func (p *Pool) Done() {
	p.doneOnce.Do(func() {
		close(p.jobQueue)
		go func() {
			p.wg.Wait()
			p.closeResults()
		}()
	})
}

// Wait drains results until every submitted job has completed. Wait must
// run concurrently with submission for batches larger than the channel
// buffers, so it does not close the queue itself; that is Done's job.
func (p *Pool) Wait() []Result {
	var results []Result
	for result := range p.results {
		results = append(results, result)
	}

	return results
}

// Shutdown cancels in-flight work, then waits for the workers to drain
// and exit. The caller must have stopped submitting.
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.Done()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
