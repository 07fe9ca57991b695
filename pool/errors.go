package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a run exceeds its deadline.
	ErrTimeout = errors.New("pool: run timed out")

	// ErrCancelled is returned when a run is stopped through Job.Cancel.
	ErrCancelled = errors.New("pool: run cancelled")

	// ErrInvalidWorkerCount is the cause of a StartupError for a worker
	// count that is not positive.
	ErrInvalidWorkerCount = errors.New("worker count must be positive")

	// ErrUnnamedTransform is the cause of a StartupError when a transform
	// built with Func is used in process mode.
	ErrUnnamedTransform = errors.New("transform has no registered name")

	// ErrUnknownTransform is reported by a worker process asked to run a
	// name that is not registered in its binary.
	ErrUnknownTransform = errors.New("transform not registered")
)

// TransformError reports that the transform failed for one item. The run
// it belongs to returns no results.
type TransformError struct {
	Index int
	Cause error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("pool: transform failed for item %d: %v", e.Index, e.Cause)
}

func (e *TransformError) Unwrap() error {
	return e.Cause
}

// StartupError reports that the workers for a run could not be created.
type StartupError struct {
	Reason string
	Cause  error
}

func (e *StartupError) Error() string {
	if e.Cause == nil {
		return "pool: cannot start workers: " + e.Reason
	}
	return fmt.Sprintf("pool: cannot start workers: %s: %v", e.Reason, e.Cause)
}

func (e *StartupError) Unwrap() error {
	return e.Cause
}
