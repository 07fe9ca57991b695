// Package demo holds the transforms behind the parmap demo commands.
//
// The transforms are registered at package level, so any binary that
// imports this package can serve them from a worker process.
package demo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/utkarsh5026/parmap/pool"
)

// ErrNegative is returned by Factorial for negative input.
var ErrNegative = errors.New("factorial of a negative number")

// SquareDelay is how long SlowSquare sleeps before answering.
const SquareDelay = time.Second

var (
	// Square returns n*n as a big integer, so squares beyond int64 are exact.
	Square = pool.NewTransform("demo.square", square)

	// SlowSquare returns n*n after SquareDelay, simulating slow work.
	SlowSquare = pool.NewTransform("demo.slow-square", slowSquare)

	// Factorial returns n! as a big integer.
	Factorial = pool.NewTransform("demo.factorial", factorial)
)

func square(_ context.Context, n int64) (*big.Int, error) {
	b := big.NewInt(n)
	return b.Mul(b, b), nil
}

func slowSquare(ctx context.Context, n int64) (*big.Int, error) {
	select {
	case <-time.After(SquareDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return square(ctx, n)
}

func factorial(ctx context.Context, n int64) (*big.Int, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegative, n)
	}

	logger := pool.LoggerFromContext(ctx)
	logger.Info("computing factorial", zap.Int64("n", n))
	fmt.Printf("Computing factorial of %d\n", n)

	start := time.Now()
	result := new(big.Int).MulRange(1, n)

	logger.Debug("factorial computed",
		zap.Int64("n", n),
		zap.Int("bits", result.BitLen()),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}

// Sequence is a list of values printed one per Step.
type Sequence struct {
	Label  string        `json:"label"`
	Values []string      `json:"values"`
	Step   time.Duration `json:"step"`
}

// Numbers and Letters are the two sequences of the tickers demo.
func Numbers(step time.Duration) Sequence {
	return Sequence{Label: "Number", Values: []string{"0", "1", "2", "3", "4"}, Step: step}
}

func Letters(step time.Duration) Sequence {
	return Sequence{Label: "Letter", Values: []string{"a", "b", "c", "e", "d"}, Step: step}
}

// Ticker returns a transform that sleeps Step before printing each value
// of a Sequence as "<Label> : <value>" to w. It returns how many values it
// printed. Lines from concurrent tickers never interleave.
func Ticker(w io.Writer) pool.ProcessFunc[Sequence, int] {
	lw := &lockedWriter{w: w}

	return func(ctx context.Context, s Sequence) (int, error) {
		timer := time.NewTimer(s.Step)
		defer timer.Stop()

		for i, v := range s.Values {
			if i > 0 {
				timer.Reset(s.Step)
			}
			select {
			case <-timer.C:
			case <-ctx.Done():
				return i, ctx.Err()
			}

			if _, err := fmt.Fprintf(lw, "%s : %s\n", s.Label, v); err != nil {
				return i, err
			}
		}
		return len(s.Values), nil
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
