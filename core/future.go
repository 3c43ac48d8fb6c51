package core

import (
	"context"
	"sync"
)

// Future is the eventual outcome of a submitted task. It settles exactly
// once: with the task's value, with an error, or with (nil, nil) when the
// task timed out under TimeoutResolve.
type Future struct {
	id   TaskID
	done chan struct{}
	once sync.Once

	value any
	err   error
}

func newFuture(id TaskID) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// failedFuture returns an already settled future.
func failedFuture(err error) *Future {
	f := newFuture(TaskID{})
	f.settle(nil, err)
	return f
}

// ID returns the ID of the task this future belongs to.
func (f *Future) ID() TaskID {
	return f.id
}

// Done is closed once the future has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done. In the latter case
// ctx.Err() is returned and the task keeps its place in the queue.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result blocks until the future settles.
func (f *Future) Result() (any, error) {
	<-f.done
	return f.value, f.err
}

// Settled reports whether the future has settled without blocking.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *Future) settle(value any, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}
