package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Job is a handle on a batch started with Runner.Start.
type Job[O any] struct {
	state  atomic.Int32
	done   chan struct{}
	cancel context.CancelCauseFunc

	mu      sync.Mutex
	report  Report
	results []O
	err     error
}

func newJob[O any](report Report, cancel context.CancelCauseFunc) *Job[O] {
	j := &Job[O]{
		done:   make(chan struct{}),
		cancel: cancel,
		report: report,
	}
	j.state.Store(int32(report.State))
	return j
}

// ID returns the run id, which is also passed to worker processes.
func (j *Job[O]) ID() string {
	return j.report.RunID
}

// State returns the current lifecycle state.
func (j *Job[O]) State() State {
	return State(j.state.Load())
}

// Done is closed once the batch has finished and every worker has been
// released.
func (j *Job[O]) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the batch finishes and returns its results.
func (j *Job[O]) Wait() ([]O, error) {
	<-j.done
	return j.results, j.err
}

// Cancel stops the batch and returns once every worker goroutine has
// returned and every worker process has been reaped. Cancelling a finished
// job does nothing.
func (j *Job[O]) Cancel() {
	j.cancel(ErrCancelled)
	<-j.done
}

// Report returns the run summary. While the batch is running Elapsed is
// the time so far.
func (j *Job[O]) Report() Report {
	j.mu.Lock()
	defer j.mu.Unlock()

	r := j.report
	r.State = j.State()
	if !r.State.Terminal() {
		r.Elapsed = time.Since(r.Started)
	}
	return r
}

func (j *Job[O]) setState(s State) {
	j.state.Store(int32(s))
}

func (j *Job[O]) finish(results []O, err error, state State, logger *zap.Logger, m *Metrics) {
	j.mu.Lock()
	j.results = results
	j.err = err
	j.report.State = state
	j.report.Elapsed = time.Since(j.report.Started)
	report := j.report
	j.mu.Unlock()

	j.setState(state)
	m.runDone(report)

	fields := []zap.Field{
		zap.Stringer("state", state),
		zap.Int("workers", report.Workers),
		zap.Int("items", report.Items),
		zap.Duration("elapsed", report.Elapsed),
	}
	if err != nil {
		logger.Info("run finished", append(fields, zap.Error(err))...)
	} else {
		logger.Info("run finished", fields...)
	}

	close(j.done)
}

// classify maps the error a batch ended with onto the error returned to
// the caller and the job's final state. ctx is the run context.
//
// A transform failure wins over everything else: it is what aborted the
// run. Otherwise the run context's cause says who stopped it.
func classify(ctx context.Context, err error) (State, error) {
	if err == nil {
		return StateCompleted, nil
	}

	var te *TransformError
	if errors.As(err, &te) {
		return StateFailed, err
	}

	switch cause := context.Cause(ctx); {
	case cause == nil:
		return StateFailed, err
	case errors.Is(cause, ErrCancelled):
		return StateCancelled, ErrCancelled
	case errors.Is(cause, ErrTimeout), errors.Is(cause, context.DeadlineExceeded):
		return StateFailed, fmt.Errorf("%w: %w", ErrTimeout, context.DeadlineExceeded)
	default:
		return StateCancelled, fmt.Errorf("%w: %w", ErrCancelled, cause)
	}
}
