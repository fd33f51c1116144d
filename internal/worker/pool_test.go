package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingJob struct {
	counter *int64
	err     error
}

type countingResult struct {
	err error
}

func (r *countingResult) GetError() error { return r.err }

func (j *countingJob) Execute(ctx context.Context) Result {
	atomic.AddInt64(j.counter, 1)
	return &countingResult{err: j.err}
}

// ctxEchoJob surfaces the context state it executed under.
type ctxEchoJob struct{}

func (j *ctxEchoJob) Execute(ctx context.Context) Result {
	return &countingResult{err: ctx.Err()}
}

type blockingJob struct {
	started chan struct{}
}

func (j *blockingJob) Execute(ctx context.Context) Result {
	close(j.started)
	<-ctx.Done()
	return &countingResult{err: ctx.Err()}
}

func TestPool_ExecutesAllJobs(t *testing.T) {
	pool := NewPool(context.Background(), 3)
	pool.Start()

	var executed int64
	go func() {
		for i := 0; i < 10; i++ {
			pool.Submit(&countingJob{counter: &executed})
		}
		pool.Done()
	}()

	results := pool.Wait()
	if len(results) != 10 {
		t.Errorf("got %d results, want 10", len(results))
	}
	if atomic.LoadInt64(&executed) != 10 {
		t.Errorf("executed %d jobs, want 10", executed)
	}
}

func TestPool_LargeBatchDoesNotStall(t *testing.T) {
	// Far more jobs than the pool's channel buffers can hold at once.
	pool := NewPool(context.Background(), 2)
	pool.Start()

	var executed int64
	go func() {
		for i := 0; i < 100; i++ {
			pool.Submit(&countingJob{counter: &executed})
		}
		pool.Done()
	}()

	done := make(chan []Result, 1)
	go func() { done <- pool.Wait() }()

	select {
	case results := <-done:
		if len(results) != 100 {
			t.Errorf("got %d results, want 100", len(results))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool stalled on a large batch")
	}
}

func TestPool_PropagatesJobErrors(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	var executed int64
	boom := errors.New("boom")
	go func() {
		pool.Submit(&countingJob{counter: &executed})
		pool.Submit(&countingJob{counter: &executed, err: boom})
		pool.Done()
	}()

	var failures int
	for _, r := range pool.Wait() {
		if r.GetError() != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("got %d failed results, want 1", failures)
	}
}

func TestPool_JobsObserveCallerContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := NewPool(ctx, 2)
	pool.Start()

	go func() {
		for i := 0; i < 6; i++ {
			pool.Submit(&ctxEchoJob{})
		}
		pool.Done()
	}()

	results := pool.Wait()
	if len(results) != 6 {
		t.Fatalf("got %d results, want 6: cancellation must not drop jobs", len(results))
	}
	for _, r := range results {
		if !errors.Is(r.GetError(), context.Canceled) {
			t.Errorf("job ran with a live context, want context.Canceled, got %v", r.GetError())
		}
	}
}

func TestPool_ShutdownCancelsRunningJobs(t *testing.T) {
	pool := NewPool(context.Background(), 1)
	pool.Start()

	job := &blockingJob{started: make(chan struct{})}
	pool.Submit(job)
	<-job.started

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}
}

func TestNewPool_MinimumOneWorker(t *testing.T) {
	pool := NewPool(context.Background(), 0)
	if pool.workers != 1 {
		t.Errorf("workers = %d, want 1", pool.workers)
	}
}
