package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestQueue(t *testing.T, configure func(*Options)) *Queue {
	t.Helper()
	opts := DefaultOptions()
	if configure != nil {
		configure(&opts)
	}
	q, err := NewQueue(opts)
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}
	return q
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func waitFuture(t *testing.T, f *Future) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-f.Done():
	case <-ctx.Done():
		t.Fatal("future did not settle within 5s")
	}
	return f.Result()
}

func valueTask(v any) Task {
	return func(ctx context.Context) (any, error) { return v, nil }
}

// gate releases one blocked task per Release call.
type gate struct {
	ch chan struct{}
}

func newGate() *gate {
	return &gate{ch: make(chan struct{})}
}

func (g *gate) Task(v any) Task {
	return func(ctx context.Context) (any, error) {
		select {
		case <-g.ch:
			return v, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (g *gate) Release(t *testing.T) {
	t.Helper()
	select {
	case g.ch <- struct{}{}:
	case <-time.After(5 * time.Second):
		t.Fatal("no task waiting on the gate")
	}
}

// recorder collects strings from concurrent tasks and listeners.
type recorder struct {
	mu    sync.Mutex
	items []string
}

func (r *recorder) Add(s string) {
	r.mu.Lock()
	r.items = append(r.items, s)
	r.mu.Unlock()
}

func (r *recorder) Items() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.items...)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
