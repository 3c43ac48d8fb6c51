package core

import (
	"runtime/debug"
	"sync"

	"github.com/Swind/go-async-queue/pubsub"
)

// EventType names a queue lifecycle notification.
type EventType string

const (
	// EventAdd fires when a task is submitted.
	EventAdd EventType = "add"
	// EventActive fires when a task is dequeued and started.
	EventActive EventType = "active"
	// EventCompleted fires when a task settles successfully.
	EventCompleted EventType = "completed"
	// EventError fires when a task settles with an error.
	EventError EventType = "error"
	// EventNext fires after a task settled and the run loop was re-run.
	EventNext EventType = "next"
	// EventEmpty fires whenever the run loop finds no pending task.
	EventEmpty EventType = "empty"
	// EventIdle fires when nothing is pending and nothing is running.
	EventIdle EventType = "idle"
)

// Event is delivered to listeners and subscribers. Task fields are zero
// for queue-level events (empty, idle).
type Event struct {
	Type     EventType
	TaskID   TaskID
	Name     string
	Priority int

	// Value is the result of a completed task.
	Value any
	// Err is the error of a failed task.
	Err error
}

// Listener receives events synchronously, in the order the queue produced
// them. Listeners may call back into the queue.
type Listener func(Event)

type listenerEntry struct {
	id uint64
	fn Listener
}

// eventHub holds listeners and the ordered backlog of notifications that
// were produced under the queue lock and must run outside of it.
type eventHub struct {
	listenersMu sync.RWMutex
	listeners   map[EventType][]listenerEntry
	nextID      uint64

	broker *pubsub.Broker
	logger Logger

	// pending is appended to under Queue.mu.
	pending []func()
	// drainMu is held by the goroutine currently running notifications.
	drainMu sync.Mutex
}

func newEventHub(logger Logger) *eventHub {
	return &eventHub{
		listeners: make(map[EventType][]listenerEntry),
		broker:    pubsub.NewBroker(false),
		logger:    logger,
	}
}

func (h *eventHub) on(t EventType, fn Listener) func() {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()

	h.nextID++
	id := h.nextID
	h.listeners[t] = append(h.listeners[t], listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { h.off(t, id) })
	}
}

func (h *eventHub) off(t EventType, id uint64) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()

	entries := h.listeners[t]
	for i, e := range entries {
		if e.id == id {
			// Copy so that a dispatch iterating the old slice is unaffected.
			next := make([]listenerEntry, 0, len(entries)-1)
			next = append(next, entries[:i]...)
			next = append(next, entries[i+1:]...)
			h.listeners[t] = next
			return
		}
	}
}

func (h *eventHub) listenerCount(t EventType) int {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()
	return len(h.listeners[t])
}

func (h *eventHub) dispatch(ev Event) {
	h.listenersMu.RLock()
	entries := h.listeners[ev.Type]
	h.listenersMu.RUnlock()

	for _, e := range entries {
		h.call(e.fn, ev)
	}
	h.broker.Broadcast(ev)
}

// call isolates a panicking listener from the queue and its peers.
func (h *eventHub) call(fn Listener, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("event listener panicked",
				F("event", string(ev.Type)),
				F("panic", rec),
				F("stack", string(debug.Stack())),
			)
		}
	}()
	fn(ev)
}
