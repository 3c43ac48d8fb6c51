package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrInvalidConfig is matched by every configuration error returned by
	// NewQueue, the setters and AddWithOptions.
	ErrInvalidConfig = errors.New("asyncqueue: invalid configuration")

	// ErrAborted is returned when a task's context is already done at the
	// time the task is started. The task body never runs.
	ErrAborted = errors.New("asyncqueue: task aborted before start")

	// ErrTimeout is matched by *TimeoutError.
	ErrTimeout = errors.New("asyncqueue: task timed out")

	// ErrCleared settles the futures of pending tasks discarded by Clear.
	ErrCleared = errors.New("asyncqueue: task cleared before start")

	// ErrNilTask is reported when a nil Task is submitted.
	ErrNilTask = errors.New("asyncqueue: task must not be nil")
)

// InvalidConfigError collects every violation found while validating
// queue or task options.
type InvalidConfigError struct {
	errs *multierror.Error
}

func newInvalidConfigError(errs *multierror.Error) error {
	if errs == nil || len(errs.Errors) == 0 {
		return nil
	}
	errs.ErrorFormat = func(es []error) string {
		if len(es) == 1 {
			return es[0].Error()
		}
		msg := fmt.Sprintf("%d errors", len(es))
		for _, e := range es {
			msg += "; " + e.Error()
		}
		return msg
	}
	return &InvalidConfigError{errs: errs}
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidConfig.Error(), e.errs.Error())
}

// Errors returns the individual violations.
func (e *InvalidConfigError) Errors() []error {
	return e.errs.WrappedErrors()
}

func (e *InvalidConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func (e *InvalidConfigError) Unwrap() error {
	return e.errs
}

// TimeoutError is returned by a task future when the task exceeded its
// effective timeout and the task was configured to fail on timeout.
type TimeoutError struct {
	TaskID  TaskID
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("asyncqueue: task %s timed out after %v", e.TaskID.String(), e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// PanicError wraps a value recovered from a panicking task body.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("asyncqueue: task panicked: %v", e.Value)
}
