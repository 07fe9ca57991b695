// Package pool runs one transformation over a batch of inputs on a bounded
// set of workers and returns the results in input order.
//
// The primary type is Runner[I, O]. A run hands every item to exactly one
// worker, collects result i into slot i, and reports the wall-clock time
// the batch took. Completion order across workers is unspecified; result
// order always matches input order.
//
// # Basic Usage
//
//	square := pool.Func(func(ctx context.Context, n int) (int, error) {
//	    return n * n, nil
//	})
//	results, report, err := pool.Map(ctx, []int{1, 2, 3}, square, pool.WithWorkerCount(3))
//	// results: []int{1, 4, 9}, report.Elapsed: batch duration
//
// # Execution Modes
//
//   - ModeThread (default): workers are goroutines sharing the caller's
//     memory. Suited to I/O-bound transforms.
//   - ModeProcess: each worker owns a child process started from the
//     current executable. Items and results cross the boundary as JSON,
//     so nothing is shared. Suited to CPU-bound transforms that must not
//     touch caller state.
//
// Process mode needs a transform that the child can find by name, so it
// must be created with NewTransform at package level, and the program must
// hand control to the pool when it is started as a worker:
//
//	var factorial = pool.NewTransform("factorial", computeFactorial)
//
//	func main() {
//	    if pool.IsWorkerProcess() {
//	        os.Exit(pool.ServeWorkerProcess())
//	    }
//	    results, _, err := pool.Map(ctx, []int{300, 400}, factorial,
//	        pool.WithMode(pool.ModeProcess))
//	    ...
//	}
//
// # Error Handling
//
// Runs are fail-fast. The first transform error cancels the remaining work
// and is returned as a *TransformError carrying the item index; no partial
// results are returned. Pool construction problems are reported as
// *StartupError. Panics inside transforms are converted to errors with a
// stack trace.
//
// # Cancellation
//
// Start returns a Job. Job.Cancel stops the run and returns only once every
// worker goroutine has exited and every child process has been reaped.
// Cancelling the context passed to Start has the same effect. WithTimeout
// bounds a run; hitting it yields ErrTimeout.
//
// # Configuration Options
//
//   - WithWorkerCount(n): number of workers (default: GOMAXPROCS; n <= 0 is rejected)
//   - WithMode(m): ModeThread or ModeProcess
//   - WithScheduling(s): SchedulingShared, SchedulingRoundRobin or SchedulingWorkStealing
//   - WithTimeout(d): deadline for the whole batch
//   - WithRetryPolicy(attempts, delay), WithBackoff(...): retry failed items
//   - WithRateLimit(perSecond, burst): token bucket in front of every attempt
//   - WithBeforeTaskStart, WithOnTaskEnd: per-item hooks
//   - WithCPUAffinity(): pin thread-mode workers to cores
//   - WithLogger(l), WithMetrics(m): zap logging and Prometheus metrics
package pool
