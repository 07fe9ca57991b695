package main

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/utkarsh5026/parmap/internal/cli"
	"github.com/utkarsh5026/parmap/internal/config"
	"github.com/utkarsh5026/parmap/internal/demo"
	"github.com/utkarsh5026/parmap/pool"
)

// env is what every command gets to work with.
type env struct {
	cfg    *config.Config
	ui     *cli.UI
	logger *zap.Logger

	registry *prometheus.Registry
}

type command func(ctx context.Context, e *env) error

var commands = map[string]command{
	"squares":   runSquares,
	"factorial": runFactorial,
	"tickers":   runTickers,
	"bench":     runBench,
}

// usageError marks bad positional arguments.
type usageError struct {
	err error
}

func (u usageError) Error() string { return u.err.Error() }

func (u usageError) Unwrap() error { return u.err }

func parseItems(args []string, defaults ...int64) ([]int64, error) {
	if len(args) == 0 {
		return defaults, nil
	}

	items := make([]int64, len(args))
	for i, a := range args {
		n, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, usageError{fmt.Errorf("item %d: %q is not an integer", i, a)}
		}
		items[i] = n
	}
	return items, nil
}

// options builds the pool options for a run over n items, wiring in the
// progress bar and metrics when they were asked for.
func (e *env) options(n int, description string) ([]pool.Option, error) {
	opts := append(e.cfg.PoolOptions(), pool.WithLogger(e.logger))

	if e.cfg.Progress {
		bar := cli.NewProgressBar(n, description, e.ui.Err)
		opts = append(opts, pool.WithOnTaskEnd(cli.ProgressHook(bar)))
	}

	if e.cfg.Metrics {
		if e.registry == nil {
			e.registry = prometheus.NewRegistry()
		}
		m, err := pool.NewMetrics(e.registry, "parmap")
		if err != nil {
			return nil, err
		}
		opts = append(opts, pool.WithMetrics(m))
	}
	return opts, nil
}

func (e *env) finish(report pool.Report) error {
	e.ui.Summary(report)
	if e.registry != nil {
		e.ui.Header("Metrics")
		return cli.RenderMetrics(e.ui.Out, e.registry)
	}
	return nil
}

func runSquares(ctx context.Context, e *env) error {
	items, err := parseItems(e.cfg.Args, 1, 2, 3, 4, 5)
	if err != nil {
		return err
	}

	t := demo.Square
	if e.cfg.Slow {
		t = demo.SlowSquare
	}

	opts, err := e.options(len(items), "Squaring")
	if err != nil {
		return err
	}

	results, report, err := pool.Map(ctx, items, t, opts...)
	if err != nil {
		e.ui.Summary(report)
		return err
	}

	for _, sq := range results {
		e.ui.Printf("Square : %d\n", sq)
	}
	return e.finish(report)
}

func runFactorial(ctx context.Context, e *env) error {
	items, err := parseItems(e.cfg.Args, 300, 400, 500, 600)
	if err != nil {
		return err
	}

	opts, err := e.options(len(items), "Computing factorials")
	if err != nil {
		return err
	}

	results, report, err := pool.Map(ctx, items, demo.Factorial, opts...)
	if err != nil {
		e.ui.Summary(report)
		return err
	}

	for i, r := range results {
		e.ui.Printf("Factorial of %d is %s\n", items[i], r)
	}
	e.ui.Elapsed(report.Elapsed)
	return e.finish(report)
}

func runTickers(ctx context.Context, e *env) error {
	if len(e.cfg.Args) > 0 {
		return usageError{fmt.Errorf("tickers takes no items, got %v", e.cfg.Args)}
	}

	sequences := []demo.Sequence{demo.Numbers(e.cfg.Step), demo.Letters(e.cfg.Step)}
	opts, err := e.options(len(sequences), "Ticking")
	if err != nil {
		return err
	}

	// a ticker is a closure over the output, so it always runs on threads
	opts = append(opts, pool.WithMode(pool.ModeThread))
	_, report, err := pool.Map(ctx, sequences, pool.Func(demo.Ticker(e.ui.Out)), opts...)
	if err != nil {
		e.ui.Summary(report)
		return err
	}

	e.ui.Elapsed(report.Elapsed)
	return e.finish(report)
}

func runBench(ctx context.Context, e *env) error {
	items, err := parseItems(e.cfg.Args, 2000, 3000, 4000, 5000, 6000, 7000, 8000, 9000)
	if err != nil {
		return err
	}
	if e.cfg.MaxWorkers <= 0 {
		return usageError{fmt.Errorf("max-workers must be positive, got %d", e.cfg.MaxWorkers)}
	}

	e.ui.Header("FACTORIAL SPEED-UP",
		fmt.Sprintf("%d items, %s mode, 1..%d workers", len(items), e.cfg.Mode, e.cfg.MaxWorkers))

	rows := make([]cli.BenchRow, 0, e.cfg.MaxWorkers)
	for w := 1; w <= e.cfg.MaxWorkers; w++ {
		opts := append(e.cfg.PoolOptions(), pool.WithLogger(e.logger), pool.WithWorkerCount(w))

		results, report, err := pool.Map(ctx, items, demo.Factorial, opts...)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil && !checkFactorials(items, results) {
			err = fmt.Errorf("wrong result with %d workers", w)
		}

		rows = append(rows, cli.BenchRow{Workers: w, Items: len(items), Elapsed: report.Elapsed, Err: err})
		e.logger.Info("bench step", zap.Int("workers", w), zap.Duration("elapsed", report.Elapsed), zap.Error(err))
	}

	return cli.RenderBench(e.ui.Out, rows)
}

func checkFactorials(items []int64, results []*big.Int) bool {
	for i, n := range items {
		if new(big.Int).MulRange(1, n).Cmp(results[i]) != 0 {
			return false
		}
	}
	return true
}
