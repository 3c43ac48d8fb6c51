package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gammazero/deque"
	"github.com/hashicorp/go-multierror"

	"github.com/Swind/go-async-queue/pubsub"
)

// Queue runs submitted tasks with bounded concurrency, in priority order,
// optionally limited to IntervalCap starts per Interval.
//
// All scheduling state is guarded by mu. Task bodies run on their own
// goroutines and report back through finish. Events, future settlement
// and waiter release are queued under mu and run in order by flush once
// mu is released, so listeners may call back into the queue.
type Queue struct {
	mu sync.Mutex

	store *PriorityTaskQueue[*taskEnvelope]

	concurrency int
	running     int

	// Rate limiting
	intervalCap     int
	interval        time.Duration
	intervalIgnored bool
	carryover       bool
	intervalCount   int
	intervalActive  bool
	intervalEnd     time.Time
	intervalTimer   *clock.Timer
	intervalGen     uint64
	resumeTimer     *clock.Timer
	resumeGen       uint64

	paused         bool
	timeout        time.Duration
	throwOnTimeout bool

	emptyWaiters *deque.Deque[chan struct{}]
	idleWaiters  *deque.Deque[chan struct{}]

	events *eventHub

	clock        Clock
	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler
	history      *executionHistory

	nameMu sync.Mutex
	name   string

	completed atomic.Int64
	failed    atomic.Int64
	timedOut  atomic.Int64
	aborted   atomic.Int64
	cleared   atomic.Int64
}

// NewQueue validates opts and creates a queue. Every violation is reported
// in a single *InvalidConfigError.
func NewQueue(opts Options) (*Queue, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	q := &Queue{
		store:           NewPriorityTaskQueue[*taskEnvelope](),
		concurrency:     opts.Concurrency,
		intervalCap:     opts.IntervalCap,
		interval:        opts.Interval,
		intervalIgnored: opts.Interval == 0 || opts.IntervalCap == Unbounded,
		carryover:       opts.CarryoverConcurrencyCount,
		paused:          !opts.AutoStart,
		timeout:         opts.Timeout,
		throwOnTimeout:  opts.ThrowOnTimeout,
		emptyWaiters:    deque.New[chan struct{}](),
		idleWaiters:     deque.New[chan struct{}](),
		events:          newEventHub(opts.Logger),
		clock:           opts.Clock,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		panicHandler:    opts.PanicHandler,
		history:         newExecutionHistory(opts.HistoryCapacity),
		name:            opts.Name,
	}
	return q, nil
}

// =============================================================================
// Submission
// =============================================================================

// Add submits task with default options. ctx is the task's cancellation
// signal: if it is done when the task is started, the task is not run and
// its future fails with ErrAborted.
func (q *Queue) Add(ctx context.Context, task Task) *Future {
	f, err := q.AddWithOptions(ctx, task, TaskOptions{})
	if err != nil {
		return failedFuture(err)
	}
	return f
}

// AddWithOptions submits task. Invalid options are reported synchronously
// and nothing is enqueued.
func (q *Queue) AddWithOptions(ctx context.Context, task Task, opts TaskOptions) (*Future, error) {
	if err := validateSubmission(task, opts); err != nil {
		return nil, err
	}
	return q.submit(ctx, task, opts), nil
}

// AddAll submits every task with the same options, in order. Options and
// tasks are validated before anything is enqueued.
func (q *Queue) AddAll(ctx context.Context, tasks []Task, opts TaskOptions) ([]*Future, error) {
	for _, task := range tasks {
		if err := validateSubmission(task, opts); err != nil {
			return nil, err
		}
	}

	futures := make([]*Future, 0, len(tasks))
	for _, task := range tasks {
		futures = append(futures, q.submit(ctx, task, opts))
	}
	return futures, nil
}

func validateSubmission(task Task, opts TaskOptions) error {
	if task == nil {
		return newInvalidConfigError(multierror.Append(nil, ErrNilTask))
	}
	return opts.Validate()
}

func (q *Queue) submit(ctx context.Context, task Task, opts TaskOptions) *Future {
	if ctx == nil {
		ctx = context.Background()
	}

	id := GenerateTaskID()
	env := &taskEnvelope{
		id:       id,
		name:     resolveTaskName(task, opts.Name),
		priority: opts.Priority,
		ctx:      ctx,
		task:     task,
		future:   newFuture(id),
	}

	q.mu.Lock()
	env.enqueuedAt = q.clock.Now()
	env.timeout = q.timeout
	if opts.Timeout > 0 {
		env.timeout = opts.Timeout
	}
	switch opts.TimeoutBehavior {
	case TimeoutResolve:
		env.throwOnTimeout = false
	case TimeoutFail:
		env.throwOnTimeout = true
	default:
		env.throwOnTimeout = q.throwOnTimeout
	}

	q.store.Enqueue(env, env.priority)
	q.emitTaskLocked(EventAdd, env)
	q.processQueueLocked()
	depth := q.store.Len()
	q.mu.Unlock()

	q.flush()
	q.metrics.RecordQueueDepth(q.Name(), depth)

	return env.future
}

// =============================================================================
// Run loop
// =============================================================================

// processQueueLocked starts tasks until the store, the concurrency limit
// or the current window runs out. It reports whether the queue is idle.
func (q *Queue) processQueueLocked() bool {
	for {
		if q.store.IsEmpty() {
			q.onEmptyLocked()
			return q.running == 0
		}
		if !q.tryStartLocked() {
			return false
		}
	}
}

func (q *Queue) tryStartLocked() bool {
	if q.paused {
		return false
	}

	canInitializeInterval := !q.isIntervalPausedLocked()
	if !q.intervalAllowsLocked() || !q.concurrencyAllowsLocked() {
		return false
	}

	env, ok := q.store.Dequeue()
	if !ok {
		return false
	}
	// The abort decision is taken before active is emitted.
	if env.ctx.Err() != nil {
		env.abortErr = context.Cause(env.ctx)
	}

	q.running++
	q.intervalCount++
	q.emitTaskLocked(EventActive, env)
	go q.execute(env)

	if canInitializeInterval {
		q.initializeIntervalLocked()
	}
	return true
}

func (q *Queue) concurrencyAllowsLocked() bool {
	return q.running < q.concurrency
}

func (q *Queue) onEmptyLocked() {
	if q.intervalActive {
		q.stopIntervalLocked()
		q.logger.Debug("rate limit window timer stopped", F("queue", q.Name()), F("reason", "empty"))
	}

	q.emitLocked(Event{Type: EventEmpty})
	q.releaseWaitersLocked(q.emptyWaiters)
	if q.running == 0 {
		q.releaseWaitersLocked(q.idleWaiters)
	}
}

// =============================================================================
// Task execution
// =============================================================================

type taskResult struct {
	value   any
	err     error
	outcome Outcome
}

func (q *Queue) execute(env *taskEnvelope) {
	startedAt := q.clock.Now()
	r := q.run(env)
	finishedAt := q.clock.Now()

	name := q.Name()
	q.history.Add(TaskExecutionRecord{
		TaskID:     env.id,
		Name:       env.name,
		QueueName:  name,
		Priority:   env.priority,
		EnqueuedAt: env.enqueuedAt,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Duration:   finishedAt.Sub(startedAt),
		Outcome:    r.outcome,
		Err:        r.err,
	})
	q.countOutcome(r.outcome)
	q.metrics.RecordTaskDuration(name, env.priority, finishedAt.Sub(startedAt))
	q.metrics.RecordTaskOutcome(name, r.outcome)

	q.finish(env, r)
}

// run settles the envelope's work into a taskResult. It never panics.
func (q *Queue) run(env *taskEnvelope) taskResult {
	if env.abortErr != nil {
		return taskResult{
			err:     fmt.Errorf("%w: %w", ErrAborted, env.abortErr),
			outcome: OutcomeAborted,
		}
	}

	ctx, cancel := context.WithCancelCause(env.ctx)
	defer cancel(nil)
	ctx = context.WithValue(ctx, taskInfoKey, taskInfo{id: env.id, queue: q})

	if env.timeout <= 0 {
		return q.invoke(ctx, env)
	}

	done := make(chan taskResult, 1)
	timer := q.clock.Timer(env.timeout)
	defer timer.Stop()
	go func() {
		done <- q.invoke(ctx, env)
	}()

	select {
	case r := <-done:
		return r
	case <-timer.C:
		// The body keeps running until it observes ctx; its result is dropped.
		terr := &TimeoutError{TaskID: env.id, Timeout: env.timeout}
		cancel(terr)
		if env.throwOnTimeout {
			return taskResult{err: terr, outcome: OutcomeTimeout}
		}
		return taskResult{outcome: OutcomeTimeout}
	}
}

func (q *Queue) invoke(ctx context.Context, env *taskEnvelope) (r taskResult) {
	defer func() {
		if rec := recover(); rec != nil {
			stack := debug.Stack()
			q.panicHandler.HandlePanic(ctx, q.Name(), env.id, rec, stack)
			q.metrics.RecordTaskPanic(q.Name(), rec)
			r = taskResult{err: &PanicError{Value: rec, Stack: stack}, outcome: OutcomePanicked}
		}
	}()

	value, err := env.task(ctx)
	if err != nil {
		return taskResult{err: err, outcome: OutcomeFailed}
	}
	return taskResult{value: value, outcome: OutcomeCompleted}
}

// finish is the settlement path shared by every outcome.
func (q *Queue) finish(env *taskEnvelope, r taskResult) {
	q.mu.Lock()
	switch {
	case r.err != nil:
		q.emitLocked(Event{Type: EventError, TaskID: env.id, Name: env.name, Priority: env.priority, Err: r.err})
	default:
		// Includes a timeout settled as (nil, nil).
		q.emitLocked(Event{Type: EventCompleted, TaskID: env.id, Name: env.name, Priority: env.priority, Value: r.value})
	}
	q.notifyLocked(func() { env.future.settle(r.value, r.err) })

	q.running--
	idle := q.processQueueLocked()
	q.emitTaskLocked(EventNext, env)
	if idle {
		q.emitLocked(Event{Type: EventIdle})
	}
	q.mu.Unlock()

	q.flush()
}

func (q *Queue) countOutcome(outcome Outcome) {
	switch outcome {
	case OutcomeCompleted:
		q.completed.Add(1)
	case OutcomeFailed, OutcomePanicked:
		q.failed.Add(1)
	case OutcomeTimeout:
		q.timedOut.Add(1)
	case OutcomeAborted:
		q.aborted.Add(1)
	case OutcomeCleared:
		q.cleared.Add(1)
	}
}

// =============================================================================
// Control
// =============================================================================

// Start resumes a paused queue. It is a no-op if the queue is not paused.
func (q *Queue) Start() {
	q.mu.Lock()
	if !q.paused {
		q.mu.Unlock()
		return
	}
	q.paused = false
	q.logger.Debug("queue started", F("queue", q.Name()))
	q.processQueueLocked()
	q.mu.Unlock()

	q.flush()
}

// Pause stops new tasks from starting. Running tasks are not affected.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.paused {
		return
	}
	q.paused = true
	q.logger.Debug("queue paused", F("queue", q.Name()))
}

// IsPaused reports whether the queue is paused.
func (q *Queue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Clear discards every pending task. Their futures settle with ErrCleared;
// running tasks and waiters are not affected.
func (q *Queue) Clear() {
	q.mu.Lock()
	dropped := q.store.Drain()
	for _, env := range dropped {
		q.notifyLocked(func() { env.future.settle(nil, ErrCleared) })
	}
	q.mu.Unlock()

	q.flush()

	name := q.Name()
	for range dropped {
		q.countOutcome(OutcomeCleared)
		q.metrics.RecordTaskOutcome(name, OutcomeCleared)
	}
	q.metrics.RecordQueueDepth(name, 0)
	if len(dropped) > 0 {
		q.logger.Debug("pending tasks cleared", F("queue", name), F("count", len(dropped)))
	}
}

// Concurrency returns the current concurrency limit.
func (q *Queue) Concurrency() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.concurrency
}

// SetConcurrency changes the concurrency limit and immediately starts any
// task the new limit allows. Lowering the limit never stops running tasks.
func (q *Queue) SetConcurrency(n int) error {
	if n < 1 {
		return newInvalidConfigError(multierror.Append(nil, fmt.Errorf("concurrency must be >= 1, got %d", n)))
	}

	q.mu.Lock()
	q.concurrency = n
	q.logger.Debug("concurrency changed", F("queue", q.Name()), F("concurrency", n))
	q.processQueueLocked()
	q.mu.Unlock()

	q.flush()
	return nil
}

// Timeout returns the default timeout applied to tasks submitted from now on.
func (q *Queue) Timeout() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.timeout
}

// SetTimeout changes the default timeout for tasks submitted afterwards.
// 0 disables the default timeout.
func (q *Queue) SetTimeout(d time.Duration) error {
	if d < 0 {
		return newInvalidConfigError(multierror.Append(nil, fmt.Errorf("timeout must be >= 0, got %v", d)))
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.timeout = d
	return nil
}

// =============================================================================
// Introspection
// =============================================================================

// Size returns the number of pending (not yet started) tasks.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.Len()
}

// SizeByPriority returns the number of pending tasks with the given priority.
func (q *Queue) SizeByPriority(priority int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.store.Filter(priority))
}

// Running returns the number of tasks currently executing.
func (q *Queue) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Name returns the name of the queue
func (q *Queue) Name() string {
	q.nameMu.Lock()
	defer q.nameMu.Unlock()
	if q.name == "" {
		return "asyncqueue"
	}
	return q.name
}

// SetName sets the name of the queue
func (q *Queue) SetName(name string) {
	q.nameMu.Lock()
	defer q.nameMu.Unlock()
	q.name = name
}

// Stats returns current observability data for this queue.
func (q *Queue) Stats() QueueStats {
	stats := QueueStats{
		Name:      q.Name(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		TimedOut:  q.timedOut.Load(),
		Aborted:   q.aborted.Load(),
		Cleared:   q.cleared.Load(),
	}

	q.mu.Lock()
	stats.Pending = q.store.Len()
	stats.Running = q.running
	stats.Concurrency = q.concurrency
	stats.IntervalCap = q.intervalCap
	stats.Interval = q.interval
	stats.IntervalCount = q.intervalCount
	stats.Paused = q.paused
	q.mu.Unlock()

	if last, ok := q.history.Last(); ok {
		stats.LastTaskName = last.Name
		stats.LastTaskAt = last.FinishedAt
	}
	return stats
}

// RecentTasks returns settled task records in newest-first order.
func (q *Queue) RecentTasks(limit int) []TaskExecutionRecord {
	return q.history.Recent(limit)
}

// =============================================================================
// Events
// =============================================================================

// On registers a listener for one event type and returns a function that
// removes it.
func (q *Queue) On(t EventType, fn Listener) (unsubscribe func()) {
	return q.events.on(t, fn)
}

// Subscribe returns a subscription that receives every Event
// asynchronously. Close it when done.
func (q *Queue) Subscribe() *pubsub.Subscription {
	return q.events.broker.Subscribe()
}

func (q *Queue) emitTaskLocked(t EventType, env *taskEnvelope) {
	q.emitLocked(Event{Type: t, TaskID: env.id, Name: env.name, Priority: env.priority})
}

func (q *Queue) emitLocked(ev Event) {
	q.notifyLocked(func() { q.events.dispatch(ev) })
}

func (q *Queue) notifyLocked(fn func()) {
	q.events.pending = append(q.events.pending, fn)
}

// flush runs queued notifications in order. Only one goroutine drains at
// a time; a caller that finds the drain taken returns at once and the
// current drainer picks up its notifications.
func (q *Queue) flush() {
	for {
		if !q.events.drainMu.TryLock() {
			return
		}
		for {
			q.mu.Lock()
			batch := q.events.pending
			q.events.pending = nil
			q.mu.Unlock()

			if len(batch) == 0 {
				break
			}
			for _, fn := range batch {
				fn()
			}
		}
		q.events.drainMu.Unlock()

		// Notifications queued between the last batch and Unlock.
		q.mu.Lock()
		more := len(q.events.pending) > 0
		q.mu.Unlock()
		if !more {
			return
		}
	}
}
