// Package queue provides the single global FIFO queue that serializes all
// local store writes. The storage drivers tolerate concurrent callers but give
// no mutual exclusion across logically related multi-step operations, so total
// write ordering is the correctness mechanism standing in for a transaction
// manager.
package queue

import (
	"context"
	"fmt"
	"sync"
)

const defaultBuffer = 64

type job struct {
	ctx context.Context
	fn  func(context.Context) error
	res chan error
}

// Queue runs submitted operations one at a time, in submission order. An
// operation's failure (or panic) is returned to its own caller and never
// blocks the operations queued behind it.
type Queue struct {
	jobs      chan job
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a queue and starts its worker. buffer <= 0 selects the default.
func New(buffer int) *Queue {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	q := &Queue{
		jobs: make(chan job, buffer),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Do enqueues fn and blocks until it has run, returning fn's error. fn begins
// only after every previously enqueued operation has settled. If ctx is
// cancelled after enqueueing, Do returns early but fn still runs in its
// assigned slot, preserving queue order for later operations.
func (q *Queue) Do(ctx context.Context, fn func(context.Context) error) error {
	j := job{ctx: ctx, fn: fn, res: make(chan error, 1)}
	select {
	case q.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and waits for queued operations to drain.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.jobs) })
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for j := range q.jobs {
		j.res <- q.call(j)
	}
}

func (q *Queue) call(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: operation panicked: %v", r)
		}
	}()
	return j.fn(j.ctx)
}
