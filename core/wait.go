package core

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
)

// WaitUntilEmpty blocks until no task is pending. Running tasks may still
// be executing when it returns. It returns ctx.Err() if ctx ends first.
func (q *Queue) WaitUntilEmpty(ctx context.Context) error {
	q.mu.Lock()
	if q.store.IsEmpty() {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.emptyWaiters.PushBack(ch)
	q.mu.Unlock()

	return q.awaitRelease(ctx, q.emptyWaiters, ch)
}

// WaitUntilIdle blocks until no task is pending and none is running.
func (q *Queue) WaitUntilIdle(ctx context.Context) error {
	q.mu.Lock()
	if q.store.IsEmpty() && q.running == 0 {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.idleWaiters.PushBack(ch)
	q.mu.Unlock()

	return q.awaitRelease(ctx, q.idleWaiters, ch)
}

// WaitUntilSizeBelow blocks until fewer than limit tasks are pending. The
// condition is re-checked every time a task settles.
func (q *Queue) WaitUntilSizeBelow(ctx context.Context, limit int) error {
	if q.Size() < limit {
		return nil
	}

	ch := make(chan struct{})
	var (
		once    sync.Once
		mu      sync.Mutex
		unsub   func()
		release bool
	)
	resolve := func() {
		once.Do(func() { close(ch) })
		mu.Lock()
		defer mu.Unlock()
		if unsub != nil {
			unsub()
			return
		}
		release = true
	}

	u := q.On(EventNext, func(Event) {
		if q.Size() < limit {
			resolve()
		}
	})
	mu.Lock()
	if release {
		u()
	} else {
		unsub = u
	}
	mu.Unlock()

	// A task may have settled between the first check and registration.
	if q.Size() < limit {
		resolve()
	}

	if err := waitFor(ctx, ch); err != nil {
		u()
		return err
	}
	return nil
}

// awaitRelease waits for ch. If ctx ends first, ch is removed from d.
func (q *Queue) awaitRelease(ctx context.Context, d *deque.Deque[chan struct{}], ch chan struct{}) error {
	err := waitFor(ctx, ch)
	if err == nil {
		return nil
	}

	q.mu.Lock()
	if i := d.Index(func(c chan struct{}) bool { return c == ch }); i >= 0 {
		d.Remove(i)
	}
	q.mu.Unlock()
	return err
}

func waitFor(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// releaseWaitersLocked removes every waiter from d and closes them once
// the notifications queued before this point have run.
func (q *Queue) releaseWaitersLocked(d *deque.Deque[chan struct{}]) {
	if d.Len() == 0 {
		return
	}
	waiters := make([]chan struct{}, 0, d.Len())
	for d.Len() > 0 {
		waiters = append(waiters, d.PopFront())
	}
	q.notifyLocked(func() {
		for _, ch := range waiters {
			close(ch)
		}
	})
}
