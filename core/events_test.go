package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recordEvents(q *Queue, r *recorder, types ...EventType) {
	for _, et := range types {
		q.On(et, func(ev Event) { r.Add(string(ev.Type)) })
	}
}

// TestEvents_Order verifies the lifecycle order for a single task
// Given: Listeners on every task event
// When: One task is submitted and completes
// Then: Events arrive as add, active, completed, next, idle
func TestEvents_Order(t *testing.T) {
	// Arrange
	q := newTestQueue(t, nil)
	var got recorder
	idle := make(chan struct{})
	recordEvents(q, &got, EventAdd, EventActive, EventCompleted, EventError, EventNext)
	q.On(EventIdle, func(ev Event) {
		got.Add(string(ev.Type))
		close(idle)
	})

	// Act
	q.Add(t.Context(), valueTask("v"))

	// Assert
	select {
	case <-idle:
	case <-time.After(5 * time.Second):
		t.Fatal("idle event not received")
	}
	want := []string{"add", "active", "completed", "next", "idle"}
	if items := got.Items(); !equalStrings(items, want) {
		t.Errorf("events = %v, want %v", items, want)
	}
}

// TestEvents_ErrorAndPayload verifies task events carry task data
// Given: A named failing task with priority 4
// When: It settles
// Then: The error event carries its ID, name, priority and error
func TestEvents_ErrorAndPayload(t *testing.T) {
	// Arrange
	q := newTestQueue(t, nil)
	boom := errors.New("boom")
	evCh := make(chan Event, 1)
	q.On(EventError, func(ev Event) { evCh <- ev })

	// Act
	f, err := q.AddWithOptions(t.Context(), func(ctx context.Context) (any, error) {
		return nil, boom
	}, TaskOptions{Name: "failing", Priority: 4})
	if err != nil {
		t.Fatalf("AddWithOptions failed: %v", err)
	}

	// Assert
	select {
	case ev := <-evCh:
		if ev.TaskID != f.ID() || ev.Name != "failing" || ev.Priority != 4 || !errors.Is(ev.Err, boom) {
			t.Errorf("event = %+v, want failing task %s with priority 4 and boom", ev, f.ID())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("error event not received")
	}
}

// TestEvents_IdleOnlyWhenNothingRuns verifies idle fires once per drain
// Given: Concurrency 2 and two tasks of different length
// When: Both complete
// Then: Idle fires exactly once, after the last next
func TestEvents_IdleOnlyWhenNothingRuns(t *testing.T) {
	// Arrange
	q := newTestQueue(t, func(o *Options) { o.Concurrency = 2 })
	var got recorder
	idle := make(chan struct{}, 4)
	recordEvents(q, &got, EventNext)
	q.On(EventIdle, func(ev Event) {
		got.Add(string(ev.Type))
		idle <- struct{}{}
	})
	slow := func(ctx context.Context) (any, error) {
		time.Sleep(30 * time.Millisecond)
		return nil, nil
	}

	// Act
	q.Add(t.Context(), valueTask(1))
	q.Add(t.Context(), slow)
	<-idle
	time.Sleep(20 * time.Millisecond)

	// Assert
	want := []string{"next", "next", "idle"}
	if items := got.Items(); !equalStrings(items, want) {
		t.Errorf("events = %v, want %v", items, want)
	}
}

// TestEvents_Unsubscribe verifies a removed listener stops receiving events
func TestEvents_Unsubscribe(t *testing.T) {
	q := newTestQueue(t, func(o *Options) { o.AutoStart = false })
	var got recorder
	off := q.On(EventAdd, func(ev Event) { got.Add("add") })

	q.Add(t.Context(), valueTask(1))
	off()
	off()
	q.Add(t.Context(), valueTask(2))

	if n := len(got.Items()); n != 1 {
		t.Errorf("listener calls = %d, want 1", n)
	}
	if n := q.events.listenerCount(EventAdd); n != 0 {
		t.Errorf("listenerCount = %d, want 0", n)
	}
}

// TestEvents_ListenerPanicIsolated verifies a panicking listener harms nobody
// Given: Two completed listeners, the first of which panics
// When: A task completes
// Then: The second listener still runs and the future settles
func TestEvents_ListenerPanicIsolated(t *testing.T) {
	// Arrange
	q := newTestQueue(t, nil)
	called := make(chan struct{}, 1)
	q.On(EventCompleted, func(ev Event) { panic("listener bug") })
	q.On(EventCompleted, func(ev Event) { called <- struct{}{} })

	// Act
	f := q.Add(t.Context(), valueTask("ok"))

	// Assert
	if v, err := waitFuture(t, f); err != nil || v != "ok" {
		t.Errorf("future = (%v, %v), want (ok, nil)", v, err)
	}
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Error("second listener was not called")
	}
}

// TestEvents_ListenerMayReenter verifies listeners can call back into the queue
// Given: A completed listener that submits a follow-up task once
// When: The first task completes
// Then: The follow-up runs without deadlocking
func TestEvents_ListenerMayReenter(t *testing.T) {
	// Arrange
	q := newTestQueue(t, func(o *Options) { o.Concurrency = 1 })
	followUp := make(chan *Future, 1)
	q.On(EventCompleted, func(ev Event) {
		if ev.Name == "first" {
			followUp <- q.Add(context.Background(), valueTask("second"))
		}
	})

	// Act
	if _, err := q.AddWithOptions(t.Context(), valueTask("first"), TaskOptions{Name: "first"}); err != nil {
		t.Fatalf("AddWithOptions failed: %v", err)
	}

	// Assert
	select {
	case f := <-followUp:
		if v, err := waitFuture(t, f); err != nil || v != "second" {
			t.Errorf("follow-up = (%v, %v), want (second, nil)", v, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow-up task was not submitted")
	}
}

// TestEvents_Subscribe verifies the channel subscription sees every event in order
// Given: A subscription opened before a task is submitted
// When: The task runs to idle
// Then: The subscription yields add, active, empty, completed, empty, next, idle
func TestEvents_Subscribe(t *testing.T) {
	// Arrange
	q := newTestQueue(t, nil)
	sub := q.Subscribe()
	defer sub.Close()

	// Act
	q.Add(t.Context(), valueTask(1))

	// Assert
	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) == 0 || got[len(got)-1] != string(EventIdle) {
		select {
		case v := <-sub.Untyped():
			got = append(got, string(v.(Event).Type))
		case <-timeout:
			t.Fatalf("subscription stopped at %v", got)
		}
	}
	want := []string{"add", "active", "empty", "completed", "empty", "next", "idle"}
	if !equalStrings(got, want) {
		t.Errorf("subscription events = %v, want %v", got, want)
	}
}

// TestEvents_SilentTimeoutCompletes verifies a timeout settled as (nil, nil) still reports completion
// Given: A 30ms default timeout without ThrowOnTimeout
// When: A task outlives its timeout
// Then: One completed event with a nil value fires and no error event
func TestEvents_SilentTimeoutCompletes(t *testing.T) {
	// Arrange
	q := newTestQueue(t, func(o *Options) { o.Timeout = 30 * time.Millisecond })
	completed := make(chan Event, 2)
	var errorEvents recorder
	q.On(EventCompleted, func(ev Event) { completed <- ev })
	q.On(EventError, func(ev Event) { errorEvents.Add(ev.Err.Error()) })

	// Act
	f := q.Add(t.Context(), func(ctx context.Context) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(300 * time.Millisecond):
			return "late", nil
		}
	})
	v, err := waitFuture(t, f)

	// Assert
	if v != nil || err != nil {
		t.Fatalf("future = (%v, %v), want (nil, nil)", v, err)
	}
	select {
	case ev := <-completed:
		if ev.TaskID != f.ID() || ev.Value != nil {
			t.Errorf("completed event = %+v, want task %s with nil value", ev, f.ID())
		}
	default:
		t.Fatal("no completed event before the future settled")
	}
	if items := errorEvents.Items(); len(items) != 0 {
		t.Errorf("error events = %v, want none", items)
	}
}
