// Package scheduler runs independent tasks on a bounded worker pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"crossmod/internal/core/ports"
)

// ErrCancelled is returned for tasks that were never started because the pool
// was cancelled.
var ErrCancelled = errors.New("scheduler: cancelled")

// Pool is a ports.Scheduler backed by an errgroup with a concurrency limit.
// A pool is bound to one context; cancelling it stops new submissions.
type Pool struct {
	ctx     context.Context
	group   errgroup.Group
	started atomic.Int64
}

var _ ports.Scheduler = (*Pool)(nil)

// New creates a pool running at most workers tasks at once. workers <= 0 means
// runtime.GOMAXPROCS(0).
func New(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{ctx: ctx}
	p.group.SetLimit(workers)
	return p
}

type handle struct {
	done chan struct{}
	err  error
}

func (h *handle) Done() <-chan struct{} { return h.done }

// Err is valid once Done is closed.
func (h *handle) Err() error { return h.err }

// Submit queues task. It blocks while all workers are busy. A cancelled pool
// returns an already finished handle carrying ErrCancelled.
func (p *Pool) Submit(task ports.Task) ports.TaskHandle {
	h := &handle{done: make(chan struct{})}
	if p.IsCancelled() {
		h.err = ErrCancelled
		close(h.done)
		return h
	}

	p.started.Add(1)
	p.group.Go(func() error {
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				h.err = fmt.Errorf("scheduler: task panicked: %v", r)
			}
		}()
		if p.IsCancelled() {
			h.err = ErrCancelled
			return nil
		}
		h.err = task(p.ctx)
		return nil
	})
	return h
}

// AwaitAll blocks until every handle finished. It returns the joined task
// errors, or the context error when the pool was cancelled meanwhile.
func (p *Pool) AwaitAll(handles []ports.TaskHandle) error {
	var errs []error
	for _, h := range handles {
		<-h.Done()
		if err := h.Err(); err != nil && !errors.Is(err, ErrCancelled) {
			errs = append(errs, err)
		}
	}
	if err := p.ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (p *Pool) IsCancelled() bool {
	return p.ctx.Err() != nil
}

// Started returns how many tasks were handed to workers.
func (p *Pool) Started() int {
	return int(p.started.Load())
}
