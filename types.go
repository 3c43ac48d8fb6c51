package asyncqueue

import "github.com/Swind/go-async-queue/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the asyncqueue package for most use cases.

// Queue is the asynchronous task queue
type Queue = core.Queue

// Options configures a Queue
type Options = core.Options

// Task is the unit of work
type Task = core.Task

// TaskID identifies a submitted task
type TaskID = core.TaskID

// TaskOptions defines per-task attributes (priority, timeout override, name)
type TaskOptions = core.TaskOptions

// TimeoutBehavior overrides the queue's ThrowOnTimeout for one task
type TimeoutBehavior = core.TimeoutBehavior

// Future is the eventual outcome of a task
type Future = core.Future

// Event is a queue lifecycle notification
type Event = core.Event

// EventType names an Event
type EventType = core.EventType

// Listener receives events synchronously
type Listener = core.Listener

// QueueStats is a snapshot of queue state
type QueueStats = core.QueueStats

// RetryPolicy configures Retry
type RetryPolicy = core.RetryPolicy

// TaskExecutionRecord is one entry of RecentTasks
type TaskExecutionRecord = core.TaskExecutionRecord

// Error types
type (
	InvalidConfigError = core.InvalidConfigError
	TimeoutError       = core.TimeoutError
	PanicError         = core.PanicError
)

// Timeout behaviors
const (
	TimeoutInherit = core.TimeoutInherit
	TimeoutResolve = core.TimeoutResolve
	TimeoutFail    = core.TimeoutFail
)

// Event types
const (
	EventAdd       = core.EventAdd
	EventActive    = core.EventActive
	EventCompleted = core.EventCompleted
	EventError     = core.EventError
	EventNext      = core.EventNext
	EventEmpty     = core.EventEmpty
	EventIdle      = core.EventIdle
)

// Unbounded disables the concurrency limit or the interval cap
const Unbounded = core.Unbounded

// Errors
var (
	ErrInvalidConfig = core.ErrInvalidConfig
	ErrAborted       = core.ErrAborted
	ErrTimeout       = core.ErrTimeout
	ErrCleared       = core.ErrCleared
	ErrNilTask       = core.ErrNilTask
)

// Convenience functions
var (
	DefaultOptions     = core.DefaultOptions
	Retry              = core.Retry
	RetryNotify        = core.RetryNotify
	NoRetry            = core.NoRetry
	DefaultRetryPolicy = core.DefaultRetryPolicy
	GetCurrentQueue    = core.GetCurrentQueue
	GetCurrentTaskID   = core.GetCurrentTaskID
)
