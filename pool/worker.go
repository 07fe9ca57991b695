package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/utkarsh5026/parmap/internal/cpu"
	"github.com/utkarsh5026/parmap/internal/proc"
)

// executor runs one attempt of one item on behalf of a worker.
type executor[I any, O any] interface {
	exec(ctx context.Context, worker, index int, item I) (O, error)

	// stop releases the workers' resources. graceful is false when the
	// run did not complete; outstanding work is then abandoned.
	stop(graceful bool) error
}

// threadExecutor calls the transform on the worker goroutine.
type threadExecutor[I any, O any] struct {
	fn     ProcessFunc[I, O]
	logger *zap.Logger
}

func (e *threadExecutor[I, O]) exec(ctx context.Context, worker, index int, item I) (O, error) {
	ctx = contextWithLogger(ctx, e.logger.With(zap.Int("worker", worker), zap.Int("index", index)))
	return processWithRecovery(ctx, item, e.fn)
}

func (e *threadExecutor[I, O]) stop(bool) error {
	return nil
}

// processWithRecovery executes fn, converting a panic into an error that
// carries the stack trace so a single item cannot crash the process.
func processWithRecovery[I, O any](ctx context.Context, item I, fn ProcessFunc[I, O]) (result O, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("worker panic: %v\nstack trace:\n%s", r, buf[:n])
		}
	}()

	return fn(ctx, item)
}

// processExecutor owns one child process per worker.
type processExecutor[I any, O any] struct {
	clients []*proc.Client
}

func startProcesses[I, O any](cfg *config, name, runID string, workers int) (*processExecutor[I, O], error) {
	path := cfg.executable
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, &StartupError{Reason: "locating executable", Cause: err}
		}
		path = exe
	}

	var level string
	if lvl := cfg.logger.Level(); lvl != zapcore.InvalidLevel {
		level = lvl.String()
	}

	e := &processExecutor[I, O]{clients: make([]*proc.Client, 0, workers)}
	for w := range workers {
		c, err := proc.Spawn(proc.Spec{
			Path:   path,
			Args:   cfg.workerArgs,
			Stderr: cfg.workerStderr,
			Env: proc.ChildEnv{
				Transform: name,
				RunID:     runID,
				WorkerID:  w,
				LogLevel:  level,
			},
		})
		if err != nil {
			_ = e.stop(false)
			return nil, &StartupError{Reason: "spawning worker process", Cause: err}
		}

		cfg.logger.Debug("worker process started", zap.Int("worker", w), zap.Int("pid", c.Pid()))
		e.clients = append(e.clients, c)
	}
	return e, nil
}

func (e *processExecutor[I, O]) exec(ctx context.Context, worker, index int, item I) (out O, err error) {
	in, err := json.Marshal(item)
	if err != nil {
		return out, fmt.Errorf("encoding item: %w", err)
	}

	raw, err := e.clients[worker].Call(ctx, index, in)
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decoding result: %w", err)
	}
	return out, nil
}

func (e *processExecutor[I, O]) stop(graceful bool) error {
	errs := make([]error, len(e.clients))

	var wg sync.WaitGroup
	for i, c := range e.clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if graceful {
				errs[i] = c.Close()
				return
			}
			c.Kill()
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// work is the loop run by one worker: pull an index, run the item, store
// the result in its slot, until the queue is empty or the run is aborted.
func (r *run[I, O]) work(ctx context.Context, worker int) error {
	if r.cfg.affinity && r.cfg.mode == ModeThread {
		release, err := cpu.Pin(worker)
		if err != nil {
			r.logger.Warn("cpu affinity not applied", zap.Int("worker", worker), zap.Error(err))
		}
		defer release()
	}

	r.cfg.metrics.workerUp(r.cfg.mode)
	defer r.cfg.metrics.workerDown(r.cfg.mode)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		index, ok := r.queue.Next(worker)
		if !ok {
			return nil
		}

		out, err := r.runItem(ctx, worker, index)
		if err != nil {
			// a failure caused by the abort is not the item's fault
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		r.results[index] = out
	}
}

// runItem runs every attempt for one item. A transform failure is returned
// as a *TransformError; anything else is a run-level error.
func (r *run[I, O]) runItem(ctx context.Context, worker, index int) (out O, err error) {
	mode := r.cfg.mode
	backoff := r.cfg.backoff.New()

	for attempt := 1; ; attempt++ {
		if r.cfg.rateLimiter != nil {
			if err := r.cfg.rateLimiter.Wait(ctx); err != nil {
				// Wait refuses up front when the next token comes after the deadline
				if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
					return out, fmt.Errorf("%w: %w (rate limiter: %v)", ErrTimeout, context.DeadlineExceeded, err)
				}
				return out, fmt.Errorf("pool: rate limiter: %w", err)
			}
		}

		info := TaskInfo{RunID: r.id, Index: index, Worker: worker, Attempt: attempt}
		if r.cfg.beforeTaskStart != nil {
			r.cfg.beforeTaskStart(info)
		}

		r.cfg.metrics.itemStarted(mode)
		start := time.Now()
		out, err = r.exec.exec(ctx, worker, index, r.items[index])
		elapsed := time.Since(start)
		r.cfg.metrics.attemptDone(mode, elapsed)

		if r.cfg.onTaskEnd != nil {
			r.cfg.onTaskEnd(TaskEvent{TaskInfo: info, Duration: elapsed, Err: err})
		}

		if err == nil {
			r.cfg.metrics.itemDone(mode, nil)
			return out, nil
		}

		if attempt >= r.cfg.maxAttempts || ctx.Err() != nil {
			r.cfg.metrics.itemDone(mode, err)
			r.logger.Debug("item failed",
				zap.Int("index", index),
				zap.Int("worker", worker),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return out, &TransformError{Index: index, Cause: err}
		}

		delay := backoff.Delay(attempt - 1)
		r.cfg.metrics.retried(mode)
		r.logger.Debug("retrying item",
			zap.Int("index", index),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			r.cfg.metrics.itemDone(mode, err)
			return out, &TransformError{Index: index, Cause: err}
		}
	}
}
