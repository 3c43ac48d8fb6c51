package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// The panic never escapes into the queue; the task's future settles with a
// *PanicError after the handler returns.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context the task body was running with
	// - queueName: The name of the queue that ran the task
	// - taskID: The ID of the panicked task
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, queueName string, taskID TaskID, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs the panic at error level.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs panic information. Without a Logger it does nothing.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, queueName string, taskID TaskID, panicInfo any, stackTrace []byte) {
	if h.Logger == nil {
		return
	}
	h.Logger.Error("task panicked",
		F("queue", queueName),
		F("task_id", taskID.String()),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Outcome is how a started (or discarded) task settled.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeAborted   Outcome = "aborted"
	OutcomePanicked  Outcome = "panicked"
	OutcomeCleared   Outcome = "cleared"
)

// Metrics defines the interface for collecting task execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a started task took to settle.
	RecordTaskDuration(queueName string, priority int, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(queueName string, panicInfo any)

	// RecordQueueDepth records the number of pending tasks.
	RecordQueueDepth(queueName string, depth int)

	// RecordTaskOutcome records how a task settled.
	RecordTaskOutcome(queueName string, outcome Outcome)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(queueName string, priority int, duration time.Duration) {
}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(queueName string, panicInfo any) {
}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(queueName string, depth int) {
}

// RecordTaskOutcome is a no-op.
func (m *NilMetrics) RecordTaskOutcome(queueName string, outcome Outcome) {
}
