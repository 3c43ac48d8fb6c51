package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// Task is the unit of deferred work. ctx is cancelled when the task's
// effective timeout fires; the body is expected to observe it.
type Task func(ctx context.Context) (any, error)

// TaskID identifies a submitted task.
type TaskID uuid.UUID

// GenerateTaskID returns a new random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.New())
}

func (id TaskID) IsZero() bool {
	return id == TaskID(uuid.Nil)
}

func (id TaskID) String() string {
	return uuid.UUID(id).String()
}

// =============================================================================
// TaskOptions: per-task attributes (priority, timeout override, etc.)
// =============================================================================

// TimeoutBehavior overrides the queue's ThrowOnTimeout for a single task.
type TimeoutBehavior int

const (
	// TimeoutInherit uses the queue-wide ThrowOnTimeout setting.
	TimeoutInherit TimeoutBehavior = iota

	// TimeoutResolve settles a timed out task with a nil value and nil error.
	TimeoutResolve

	// TimeoutFail settles a timed out task with a *TimeoutError.
	TimeoutFail
)

type TaskOptions struct {
	// Priority orders pending tasks; higher runs first. Default 0.
	Priority int

	// Name labels the task in history and metrics. Defaults to the
	// function name of the task.
	Name string

	// Timeout overrides the queue default when > 0. Negative values are
	// rejected.
	Timeout time.Duration

	TimeoutBehavior TimeoutBehavior
}

// Validate reports option values that can never be satisfied.
func (o TaskOptions) Validate() error {
	var errs *multierror.Error
	if o.Timeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("timeout must be >= 0, got %v", o.Timeout))
	}
	if o.TimeoutBehavior < TimeoutInherit || o.TimeoutBehavior > TimeoutFail {
		errs = multierror.Append(errs, fmt.Errorf("unknown timeout behavior %d", o.TimeoutBehavior))
	}
	return newInvalidConfigError(errs)
}

// =============================================================================
// Context Helper
// =============================================================================
type taskInfoKeyType struct{}

var taskInfoKey taskInfoKeyType

type taskInfo struct {
	id    TaskID
	queue *Queue
}

// GetCurrentQueue returns the Queue running the task that owns ctx.
func GetCurrentQueue(ctx context.Context) *Queue {
	if v, ok := ctx.Value(taskInfoKey).(taskInfo); ok {
		return v.queue
	}
	return nil
}

// GetCurrentTaskID returns the ID of the task that owns ctx.
func GetCurrentTaskID(ctx context.Context) (TaskID, bool) {
	if v, ok := ctx.Value(taskInfoKey).(taskInfo); ok {
		return v.id, true
	}
	return TaskID{}, false
}

// taskEnvelope is a submitted task together with the options resolved at
// submission time. It lives in the pending store until dequeued.
type taskEnvelope struct {
	id       TaskID
	name     string
	priority int
	ctx      context.Context
	task     Task

	timeout        time.Duration
	throwOnTimeout bool

	future     *Future
	enqueuedAt time.Time

	// abortErr is the context cause captured when the task was dequeued
	// with its context already done. Guarded by Queue.mu until started.
	abortErr error
}
