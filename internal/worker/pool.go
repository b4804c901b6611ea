// Package worker runs passage classification concurrently and paces
// outbound page fetches per host.
package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Submit once Wait has been called
var ErrPoolClosed = errors.New("pool is closed")

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool runs jobs on a fixed number of goroutines. Jobs still queued when
// the context is cancelled are dropped without running. Submit and Wait are
// meant to be called from one goroutine.
type Pool struct {
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    chan Job
	results chan Result
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
	out     []Result
}

// NewPool starts a pool of workers bound to ctx
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(chan Job, workers),
		results: make(chan Result, workers),
		done:    make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	go p.collect()

	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for job := range p.jobs {
		if p.ctx.Err() != nil {
			continue
		}
		p.results <- job.Execute(p.ctx)
	}
}

// collect keeps the results channel drained so workers never stall on it
func (p *Pool) collect() {
	defer close(p.done)
	for r := range p.results {
		p.out = append(p.out, r)
	}
}

// Submit queues job, blocking while every worker is busy and the queue is
// full. It fails once the context is cancelled or the pool is closed.
func (p *Pool) Submit(job Job) error {
	if p.closed {
		return ErrPoolClosed
	}
	if err := p.ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.jobs <- job:
		return nil
	}
}

// Wait closes the pool, waits for running jobs and returns their results in
// completion order
func (p *Pool) Wait() []Result {
	if !p.closed {
		p.closed = true
		close(p.jobs)
		p.wg.Wait()
		close(p.results)
		<-p.done
		p.cancel()
	}

	out := make([]Result, len(p.out))
	copy(out, p.out)
	return out
}
