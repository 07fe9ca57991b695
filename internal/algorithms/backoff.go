package algorithms

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// BackoffType selects the delay curve used between retry attempts.
type BackoffType int

const (
	// BackoffExponential doubles the delay after every failed attempt.
	BackoffExponential BackoffType = iota
	// BackoffJittered is exponential with a random +/- jitter factor applied.
	BackoffJittered
	// BackoffDecorrelated picks each delay in [initial, 3*previous].
	BackoffDecorrelated
)

// shifts beyond this overflow int64 nanoseconds for any non-trivial delay
const maxShift = 62

func (b BackoffType) String() string {
	switch b {
	case BackoffJittered:
		return "jittered"
	case BackoffDecorrelated:
		return "decorrelated"
	default:
		return "exponential"
	}
}

// ParseBackoffType maps a configuration string onto a BackoffType.
func ParseBackoffType(s string) (BackoffType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exponential", "exp":
		return BackoffExponential, nil
	case "jittered", "jitter":
		return BackoffJittered, nil
	case "decorrelated":
		return BackoffDecorrelated, nil
	default:
		return 0, fmt.Errorf("unknown backoff %q", s)
	}
}

// Backoff yields the wait before retry number n (0 = first retry).
// Implementations may keep state between calls, so a Backoff belongs to
// a single item's retry sequence.
type Backoff interface {
	Delay(retry int) time.Duration
}

// Policy describes how Backoff values are built for each item.
type Policy struct {
	Type         BackoffType
	InitialDelay time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
}

// New returns a fresh Backoff for one item.
func (p Policy) New() Backoff {
	maxDelay := p.MaxDelay
	if maxDelay <= 0 || maxDelay < p.InitialDelay {
		maxDelay = p.InitialDelay
	}

	switch p.Type {
	case BackoffJittered:
		return &jittered{initial: p.InitialDelay, max: maxDelay, factor: clamp(p.JitterFactor, 0, 1)}
	case BackoffDecorrelated:
		return &decorrelated{initial: p.InitialDelay, max: maxDelay, prev: p.InitialDelay}
	default:
		return exponential{initial: p.InitialDelay, max: maxDelay}
	}
}

type exponential struct {
	initial, max time.Duration
}

func (e exponential) Delay(retry int) time.Duration {
	return expDelay(retry, e.initial, e.max)
}

// jittered spreads simultaneous retries from different workers apart.
type jittered struct {
	initial, max time.Duration
	factor       float64
}

func (j *jittered) Delay(retry int) time.Duration {
	if retry < 0 {
		return 0
	}
	base := expDelay(retry, j.initial, j.max)
	mult := 1 + (rand.Float64()*2-1)*j.factor // #nosec G404 -- jitter does not need crypto rand
	return clamp(time.Duration(float64(base)*mult), 0, j.max)
}

// decorrelated follows sleep = min(max, rand(initial, prev*3)).
type decorrelated struct {
	initial, max, prev time.Duration
}

func (d *decorrelated) Delay(retry int) time.Duration {
	if retry <= 0 {
		d.prev = d.initial
		return d.initial
	}

	upper := min(d.prev*3, d.max)
	span := upper - d.initial
	if span <= 0 {
		d.prev = d.initial
		return d.initial
	}

	d.prev = d.initial + time.Duration(rand.Int64N(int64(span))) // #nosec G404
	return d.prev
}

func expDelay(retry int, initial, maxDelay time.Duration) time.Duration {
	if retry < 0 {
		return 0
	}
	if retry >= maxShift {
		return maxDelay
	}

	d := initial << uint(retry)
	if d > maxDelay || d < 0 || d>>uint(retry) != initial {
		return maxDelay
	}
	return d
}

func clamp[T int | int64 | float64 | time.Duration](v, lo, hi T) T {
	return max(lo, min(v, hi))
}
