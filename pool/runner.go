package pool

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/utkarsh5026/parmap/internal/scheduler"
)

// Runner maps a transform over batches of items on a bounded set of
// workers. A Runner holds only configuration; each Start or Run creates
// its own workers and tears them down before returning. A Runner is safe
// for concurrent use.
type Runner[I any, O any] struct {
	cfg *config
}

// NewRunner creates a Runner configured by opts.
func NewRunner[I any, O any](opts ...Option) *Runner[I, O] {
	return &Runner[I, O]{cfg: newConfig(opts...)}
}

// Run maps t over items and blocks until the batch finishes.
// On success results[i] is t applied to items[i]. On any error the results
// are nil; the Report is filled in either way.
func (r *Runner[I, O]) Run(ctx context.Context, items []I, t Transform[I, O]) ([]O, Report, error) {
	started := time.Now()
	job, err := r.Start(ctx, items, t)
	if err != nil {
		report := r.failedReport(len(items), started)
		r.cfg.logger.Warn("run failed to start",
			zap.String("run_id", report.RunID),
			zap.Duration("elapsed", report.Elapsed),
			zap.Error(err),
		)
		return nil, report, err
	}

	results, err := job.Wait()
	return results, job.Report(), err
}

// Start creates the workers and begins the batch in the background.
// It fails with a *StartupError when the workers cannot be created; no
// workers are left running in that case.
func (r *Runner[I, O]) Start(ctx context.Context, items []I, t Transform[I, O]) (*Job[O], error) {
	cfg := r.cfg
	started := time.Now()

	if cfg.workerCount <= 0 {
		return nil, &StartupError{Reason: "invalid worker count", Cause: ErrInvalidWorkerCount}
	}
	if t.fn == nil {
		return nil, &StartupError{Reason: "nil transform"}
	}
	if cfg.mode == ModeProcess && t.name == "" {
		return nil, &StartupError{Reason: "process mode", Cause: ErrUnnamedTransform}
	}

	workers := min(cfg.workerCount, len(items))
	report := Report{
		RunID:      uuid.NewString(),
		Mode:       cfg.mode,
		Scheduling: cfg.scheduling,
		Workers:    workers,
		Items:      len(items),
		State:      StateCreated,
		Started:    started,
	}

	queue, err := scheduler.New(cfg.scheduling, len(items), max(workers, 1))
	if err != nil {
		return nil, &StartupError{Reason: "scheduling", Cause: err}
	}

	logger := cfg.logger.With(zap.String("run_id", report.RunID))

	if len(items) == 0 {
		job := newJob[O](report, func(error) {})
		job.finish(make([]O, 0), nil, StateCompleted, logger, cfg.metrics)
		return job, nil
	}

	var exec executor[I, O]
	switch cfg.mode {
	case ModeProcess:
		pe, err := startProcesses[I, O](cfg, t.name, report.RunID, workers)
		if err != nil {
			return nil, err
		}
		exec = pe
	default:
		exec = &threadExecutor[I, O]{fn: t.fn, logger: logger}
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	stopTimer := context.CancelFunc(func() {})
	if cfg.timeout > 0 {
		runCtx, stopTimer = context.WithTimeoutCause(runCtx, cfg.timeout, ErrTimeout)
	}

	job := newJob[O](report, cancel)
	batch := &run[I, O]{
		id:      report.RunID,
		cfg:     cfg,
		logger:  logger,
		items:   items,
		results: make([]O, len(items)),
		queue:   queue,
		exec:    exec,
	}

	job.setState(StateRunning)
	logger.Info("run started",
		zap.Stringer("mode", cfg.mode),
		zap.Stringer("scheduling", cfg.scheduling),
		zap.Int("workers", workers),
		zap.Int("items", len(items)),
	)

	go func() {
		defer cancel(nil)
		defer stopTimer()

		results, state, err := batch.execute(runCtx, workers)
		job.finish(results, err, state, logger, cfg.metrics)
	}()

	return job, nil
}

// failedReport describes a run whose workers could not be started.
func (r *Runner[I, O]) failedReport(items int, started time.Time) Report {
	return Report{
		RunID:      uuid.NewString(),
		Mode:       r.cfg.mode,
		Scheduling: r.cfg.scheduling,
		Items:      items,
		State:      StateFailed,
		Started:    started,
		Elapsed:    time.Since(started),
	}
}

// run is the state of one batch.
type run[I any, O any] struct {
	id     string
	cfg    *config
	logger *zap.Logger

	items   []I
	results []O // each slot written by exactly one worker

	queue scheduler.Queue
	exec  executor[I, O]
}

func (r *run[I, O]) execute(ctx context.Context, workers int) ([]O, State, error) {
	g, gctx := errgroup.WithContext(ctx)
	for w := range workers {
		g.Go(func() error {
			return r.work(gctx, w)
		})
	}

	state, err := classify(ctx, g.Wait())

	if s, ok := r.queue.(interface{ Steals() int64 }); ok {
		r.logger.Debug("work stealing finished", zap.Int64("steals", s.Steals()))
	}

	// the errgroup join orders every result write before this point
	if stopErr := r.exec.stop(err == nil); stopErr != nil && err == nil {
		state, err = StateFailed, fmt.Errorf("pool: stopping workers: %w", stopErr)
	}

	if err != nil {
		return nil, state, err
	}
	return r.results, StateCompleted, nil
}

// Map runs t over items with a new Runner configured by opts.
func Map[I any, O any](ctx context.Context, items []I, t Transform[I, O], opts ...Option) ([]O, Report, error) {
	return NewRunner[I, O](opts...).Run(ctx, items, t)
}

// MapThreads runs fn over items on workers goroutines.
func MapThreads[I any, O any](ctx context.Context, items []I, fn ProcessFunc[I, O], workers int, opts ...Option) ([]O, Report, error) {
	opts = slices.Concat(opts, []Option{WithMode(ModeThread), WithWorkerCount(workers)})
	return Map(ctx, items, Func(fn), opts...)
}

// MapProcesses runs t over items on workers child processes. t must have
// been created with NewTransform.
func MapProcesses[I any, O any](ctx context.Context, items []I, t Transform[I, O], workers int, opts ...Option) ([]O, Report, error) {
	opts = slices.Concat(opts, []Option{WithMode(ModeProcess), WithWorkerCount(workers)})
	return Map(ctx, items, t, opts...)
}
