package pool

import (
	"io"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/utkarsh5026/parmap/internal/algorithms"
)

// Option is a functional option for configuring a Runner.
type Option func(*config)

type config struct {
	workerCount int
	mode        Mode
	scheduling  Scheduling
	timeout     time.Duration

	maxAttempts int
	backoff     algorithms.Policy
	rateLimiter *rate.Limiter
	affinity    bool

	beforeTaskStart func(TaskInfo)
	onTaskEnd       func(TaskEvent)

	logger  *zap.Logger
	metrics *Metrics

	executable   string
	workerArgs   []string
	workerStderr io.Writer
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		workerCount: runtime.GOMAXPROCS(0),
		mode:        ModeThread,
		scheduling:  SchedulingShared,
		maxAttempts: 1,
		backoff: algorithms.Policy{
			Type:         algorithms.BackoffExponential,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			JitterFactor: 0.1,
		},
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithWorkerCount sets the number of concurrent workers.
// If not specified, defaults to runtime.GOMAXPROCS(0). A count that is not
// positive makes Start fail with a StartupError. Workers beyond the number
// of items are never started.
func WithWorkerCount(count int) Option {
	return func(cfg *config) {
		cfg.workerCount = count
	}
}

// WithMode selects thread or process workers. Default: ModeThread.
func WithMode(mode Mode) Option {
	return func(cfg *config) {
		cfg.mode = mode
	}
}

// WithScheduling selects how items are distributed. Default: SchedulingShared.
func WithScheduling(s Scheduling) Option {
	return func(cfg *config) {
		cfg.scheduling = s
	}
}

// WithTimeout bounds the whole batch. A run that exceeds it fails with
// ErrTimeout.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

// WithRetryPolicy retries a failed item up to maxAttempts times in total.
// initialDelay is the wait before the first retry; later waits follow the
// backoff curve (exponential unless WithBackoff says otherwise).
// The run only fails once an item has used up its attempts.
func WithRetryPolicy(maxAttempts int, initialDelay time.Duration) Option {
	return func(cfg *config) {
		if maxAttempts > 0 {
			cfg.maxAttempts = maxAttempts
		}
		if initialDelay > 0 {
			cfg.backoff.InitialDelay = initialDelay
		}
	}
}

// WithBackoff selects the retry delay curve. maxDelay caps every delay;
// jitterFactor (0..1) only matters for BackoffJittered.
func WithBackoff(t BackoffType, maxDelay time.Duration, jitterFactor float64) Option {
	return func(cfg *config) {
		cfg.backoff.Type = t
		if maxDelay > 0 {
			cfg.backoff.MaxDelay = maxDelay
		}
		if jitterFactor >= 0 {
			cfg.backoff.JitterFactor = jitterFactor
		}
	}
}

// WithRateLimit caps how many attempts per second the pool starts across
// all workers. burst is the bucket size. The limiter belongs to the Runner
// and is shared by all of its runs.
//
// Example:
//
//	WithRateLimit(10, 5) // Allow 10 items/sec with burst of 5
func WithRateLimit(perSecond float64, burst int) Option {
	return func(cfg *config) {
		if perSecond > 0 && burst > 0 {
			cfg.rateLimiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithCPUAffinity locks each thread-mode worker to an OS thread pinned to
// one core. It has no effect in process mode.
func WithCPUAffinity() Option {
	return func(cfg *config) {
		cfg.affinity = true
	}
}

// WithBeforeTaskStart registers a hook called before every attempt.
// Hooks run on worker goroutines and must be safe for concurrent use.
func WithBeforeTaskStart(fn func(TaskInfo)) Option {
	return func(cfg *config) {
		cfg.beforeTaskStart = fn
	}
}

// WithOnTaskEnd registers a hook called after every attempt, successful
// or not. Hooks run on worker goroutines and must be safe for concurrent use.
func WithOnTaskEnd(fn func(TaskEvent)) Option {
	return func(cfg *config) {
		cfg.onTaskEnd = fn
	}
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithMetrics records run and item metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(cfg *config) {
		cfg.metrics = m
	}
}

// WithExecutable overrides the binary started for process workers.
// Default: os.Executable(). The binary must dispatch to
// ServeWorkerProcess when IsWorkerProcess reports true.
func WithExecutable(path string, args ...string) Option {
	return func(cfg *config) {
		cfg.executable = path
		cfg.workerArgs = args
	}
}

// WithWorkerStderr sets where process workers' stderr (and anything they
// print) goes. Default: os.Stderr.
func WithWorkerStderr(w io.Writer) Option {
	return func(cfg *config) {
		cfg.workerStderr = w
	}
}
