package pool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/utkarsh5026/parmap/internal/algorithms"
	"github.com/utkarsh5026/parmap/internal/scheduler"
)

// ProcessFunc transforms one item. It must not depend on mutable state
// shared with other invocations; in thread mode it may be called
// concurrently, in process mode it runs in another process entirely.
//
// Type parameters:
//   - I: The input item type
//   - O: The result type
type ProcessFunc[I any, O any] func(ctx context.Context, item I) (O, error)

// Mode selects what a worker is.
type Mode int

const (
	// ModeThread runs workers as goroutines in the calling process.
	ModeThread Mode = iota
	// ModeProcess runs each worker in its own child process.
	ModeProcess
)

func (m Mode) String() string {
	switch m {
	case ModeThread:
		return "thread"
	case ModeProcess:
		return "process"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a configuration string onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "thread", "threads", "goroutine", "io":
		return ModeThread, nil
	case "process", "processes", "proc", "cpu":
		return ModeProcess, nil
	default:
		return 0, fmt.Errorf("unknown execution mode %q", s)
	}
}

// Scheduling selects how item indices are spread across workers.
type Scheduling = scheduler.Strategy

const (
	SchedulingShared       = scheduler.Shared
	SchedulingRoundRobin   = scheduler.RoundRobin
	SchedulingWorkStealing = scheduler.WorkStealing
)

// ParseScheduling maps a configuration string onto a Scheduling.
func ParseScheduling(s string) (Scheduling, error) {
	return scheduler.ParseStrategy(s)
}

// BackoffType selects the retry delay curve.
type BackoffType = algorithms.BackoffType

const (
	BackoffExponential  = algorithms.BackoffExponential
	BackoffJittered     = algorithms.BackoffJittered
	BackoffDecorrelated = algorithms.BackoffDecorrelated
)

// ParseBackoff maps a configuration string onto a BackoffType.
func ParseBackoff(s string) (BackoffType, error) {
	return algorithms.ParseBackoffType(s)
}

// State is the lifecycle position of a Job.
//
//	CREATED -> RUNNING -> COMPLETED | FAILED | CANCELLED
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// Report summarises one run.
type Report struct {
	RunID      string
	Mode       Mode
	Scheduling Scheduling
	Workers    int
	Items      int
	State      State
	Started    time.Time
	Elapsed    time.Duration
}

// TaskInfo identifies one attempt at one item.
type TaskInfo struct {
	RunID   string
	Index   int
	Worker  int
	Attempt int // 1-based
}

// TaskEvent is delivered to WithOnTaskEnd hooks after every attempt.
type TaskEvent struct {
	TaskInfo
	Duration time.Duration
	Err      error
}
