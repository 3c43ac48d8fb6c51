// Package asyncqueue provides an in-process asynchronous task queue with
// bounded concurrency, priority ordering and rate limiting.
//
// Tasks are submitted to a Queue, which starts at most Concurrency of them
// at once, highest priority first, and optionally no more than IntervalCap
// per Interval. Every submission returns a Future that settles with the
// task's value or error.
//
// # Quick Start
//
//	q, err := asyncqueue.New(asyncqueue.Options{
//		Concurrency: 2,
//		IntervalCap: 10,
//		Interval:    time.Second,
//		AutoStart:   true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	f := q.Add(ctx, func(ctx context.Context) (any, error) {
//		return fetch(ctx, url)
//	})
//	body, err := f.Wait(ctx)
//
// # Key Concepts
//
// Priority: TaskOptions.Priority orders pending tasks; higher runs first and
// tasks of equal priority start in submission order. A running task is never
// preempted.
//
// Rate limiting: IntervalCap starts are allowed per Interval window. With
// CarryoverConcurrencyCount, tasks still running when a window rolls over
// count against the next window.
//
// Timeouts: Options.Timeout and TaskOptions.Timeout race the task body
// against a deadline. A timed out task settles with (nil, nil) or with a
// *TimeoutError, depending on ThrowOnTimeout and TaskOptions.TimeoutBehavior.
// The body's context is cancelled; the body itself is never killed.
//
// Waiting: WaitUntilEmpty, WaitUntilIdle and WaitUntilSizeBelow block until
// the queue reaches the corresponding state.
//
// Events: On registers synchronous listeners for add, active, completed,
// error, next, empty and idle events; Subscribe delivers the same events
// over a channel.
package asyncqueue
