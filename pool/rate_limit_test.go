package pool

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimit_Throttles(t *testing.T) {
	fn := func(_ context.Context, n int) (int, error) {
		return n, nil
	}

	start := time.Now()
	results, _, err := MapThreads(context.Background(), seq(10), fn, 4,
		WithRateLimit(50, 1))
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}

	// 10 items at 50/s with burst 1: the 9 after the first wait 20ms each
	if elapsed < 150*time.Millisecond {
		t.Errorf("expected rate limiting to take at least 150ms, took %v", elapsed)
	}
}

func TestRateLimit_BurstIsImmediate(t *testing.T) {
	fn := func(_ context.Context, n int) (int, error) {
		return n, nil
	}

	start := time.Now()
	_, _, err := MapThreads(context.Background(), seq(5), fn, 5, WithRateLimit(1, 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("expected the burst to pass without waiting, took %v", elapsed)
	}
}

func TestRateLimit_InvalidValuesIgnored(t *testing.T) {
	cfg := newConfig(WithRateLimit(0, 5), WithRateLimit(5, 0), WithRateLimit(-1, -1))
	if cfg.rateLimiter != nil {
		t.Errorf("expected no limiter for invalid values")
	}
}

func TestRateLimit_DeadlineIsTimeout(t *testing.T) {
	fn := func(_ context.Context, n int) (int, error) {
		return n, nil
	}

	tests := []struct {
		name string
		ctx  func() (context.Context, context.CancelFunc)
		opts []Option
	}{
		{
			name: "caller deadline",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 100*time.Millisecond)
			},
		},
		{
			name: "run timeout",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithCancel(context.Background())
			},
			opts: []Option{WithTimeout(100 * time.Millisecond)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.ctx()
			defer cancel()

			// one token every 10s: the second item can never start in time
			opts := append([]Option{WithRateLimit(0.1, 1)}, tt.opts...)
			start := time.Now()
			_, report, err := MapThreads(ctx, seq(3), fn, 1, opts...)
			if err == nil {
				t.Fatal("expected an error")
			}

			var te *TransformError
			if errors.As(err, &te) {
				t.Errorf("rate limiting is not a transform failure: %v", err)
			}
			if !errors.Is(err, ErrTimeout) || !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("expected a timeout, got %v", err)
			}
			if report.State != StateFailed {
				t.Errorf("expected state failed, got %s", report.State)
			}
			if elapsed := time.Since(start); elapsed > 5*time.Second {
				t.Errorf("run took %v waiting for a token", elapsed)
			}
		})
	}
}

func TestRateLimit_Cancelled(t *testing.T) {
	fn := func(_ context.Context, n int) (int, error) {
		return n, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	// no deadline: the second item waits for its token until cancelled
	_, report, err := MapThreads(ctx, seq(3), fn, 1, WithRateLimit(0.1, 1))
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if report.State != StateCancelled {
		t.Errorf("expected state cancelled, got %s", report.State)
	}
}
