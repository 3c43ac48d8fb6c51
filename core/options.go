package core

import (
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	// Unbounded disables the concurrency limit or the interval cap.
	Unbounded = math.MaxInt

	// MaxInterval is the largest representable duration. It stands for an
	// infinite window and is rejected as an Interval.
	MaxInterval = time.Duration(math.MaxInt64)
)

// Options configures a Queue. Start from DefaultOptions; the zero value is
// not valid because Concurrency and IntervalCap must be >= 1.
type Options struct {
	// Name labels the queue in logs, metrics and stats.
	Name string

	// Concurrency is the maximum number of tasks running at once.
	Concurrency int

	// IntervalCap is the maximum number of task starts per Interval.
	IntervalCap int

	// Interval is the length of the rate-limit window. 0 disables rate
	// limiting, as does IntervalCap == Unbounded.
	Interval time.Duration

	// CarryoverConcurrencyCount makes tasks still running when a window
	// rolls over count against the new window's IntervalCap.
	CarryoverConcurrencyCount bool

	// AutoStart starts the queue immediately. When false the queue is
	// created paused and Start must be called.
	AutoStart bool

	// Timeout is the default per-task timeout. 0 means no timeout.
	Timeout time.Duration

	// ThrowOnTimeout makes timed out tasks settle with *TimeoutError
	// instead of (nil, nil).
	ThrowOnTimeout bool

	// HistoryCapacity bounds the number of records kept for RecentTasks.
	HistoryCapacity int

	Clock        Clock
	Logger       Logger
	Metrics      Metrics
	PanicHandler PanicHandler
}

// DefaultOptions returns unbounded, auto-started options with default
// handlers.
func DefaultOptions() Options {
	return Options{
		Concurrency:     Unbounded,
		IntervalCap:     Unbounded,
		AutoStart:       true,
		HistoryCapacity: defaultTaskHistoryCapacity,
	}
}

// Validate checks every field and reports all violations at once.
func (o Options) Validate() error {
	var errs *multierror.Error
	if o.Concurrency < 1 {
		errs = multierror.Append(errs, fmt.Errorf("concurrency must be >= 1, got %d", o.Concurrency))
	}
	if o.IntervalCap < 1 {
		errs = multierror.Append(errs, fmt.Errorf("interval cap must be >= 1, got %d", o.IntervalCap))
	}
	if o.Interval < 0 {
		errs = multierror.Append(errs, fmt.Errorf("interval must be >= 0, got %v", o.Interval))
	}
	if o.Interval == MaxInterval {
		errs = multierror.Append(errs, fmt.Errorf("interval must be finite"))
	}
	if o.Timeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("timeout must be >= 0, got %v", o.Timeout))
	}
	return newInvalidConfigError(errs)
}

// withDefaults fills unset handlers.
func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = NewClock()
	}
	if o.Logger == nil {
		o.Logger = NewNoOpLogger()
	}
	if o.Metrics == nil {
		o.Metrics = &NilMetrics{}
	}
	if o.PanicHandler == nil {
		o.PanicHandler = &DefaultPanicHandler{Logger: o.Logger}
	}
	if o.HistoryCapacity < 1 {
		o.HistoryCapacity = defaultTaskHistoryCapacity
	}
	return o
}
