// Package workerpool provides a small bounded job pool used for background
// flush and compaction work, with deterministic drain-on-shutdown
// termination: once Shutdown is called, no new job is accepted, and
// Shutdown itself blocks until every already-submitted job has finished.
//
// Built directly on golang.org/x/sync/errgroup, which already provides
// exactly this "bounded concurrency, collect first error, Wait drains
// in-flight work" shape via errgroup.Group.SetLimit.
package workerpool

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Pool runs submitted jobs on up to n goroutines at a time.
type Pool struct {
	group *errgroup.Group
	ctx   context.Context

	mu       sync.Mutex
	shutdown bool
}

// New creates a Pool bounded to n concurrent jobs. ctx governs cancellation
// of in-flight and pending jobs; a job observing ctx.Err() should return
// promptly.
func New(ctx context.Context, n int) *Pool {
	g, gctx := errgroup.WithContext(ctx)
	if n > 0 {
		g.SetLimit(n)
	}
	return &Pool{group: g, ctx: gctx}
}

// Context returns the pool's derived context, cancelled once any submitted
// job returns a non-nil error or once Shutdown's wait for submitted jobs
// has returned.
func (p *Pool) Context() context.Context { return p.ctx }

// ErrPoolShuttingDown is returned by Submit once Shutdown has begun.
type shuttingDownError struct{}

func (shuttingDownError) Error() string { return "workerpool: pool is shutting down" }

// ErrPoolShuttingDown marks the shutdown rejection, so callers can
// errors.Is against it.
var ErrPoolShuttingDown error = shuttingDownError{}

// Submit enqueues fn to run on a pool goroutine, blocking only if all n
// slots are currently busy. It returns ErrPoolShuttingDown if Shutdown has
// already been called.
func (p *Pool) Submit(fn func(ctx context.Context) error) error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return ErrPoolShuttingDown
	}
	p.mu.Unlock()

	p.group.Go(func() error {
		return fn(p.ctx)
	})
	return nil
}

// Shutdown stops accepting new jobs and waits for every already-submitted
// job to finish (successfully or not), returning the first error
// encountered, if any.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	p.shutdown = true
	p.mu.Unlock()
	return p.group.Wait()
}
