package core

import "time"

// TaskExecutionRecord captures a settled task.
type TaskExecutionRecord struct {
	TaskID     TaskID
	Name       string
	QueueName  string
	Priority   int
	EnqueuedAt time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Outcome    Outcome
	Err        error
}

// QueueStats represents runtime observability state for a queue.
type QueueStats struct {
	Name          string
	Pending       int
	Running       int
	Concurrency   int
	IntervalCap   int
	Interval      time.Duration
	IntervalCount int
	Paused        bool

	Completed int64
	Failed    int64
	TimedOut  int64
	Aborted   int64
	Cleared   int64

	LastTaskName string
	LastTaskAt   time.Time
}
