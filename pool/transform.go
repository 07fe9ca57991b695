package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/utkarsh5026/parmap/internal/proc"
)

// Transform is a ProcessFunc that may carry a registered name. Only named
// transforms can run in process mode: the child process looks the name up
// in its own copy of the registry.
type Transform[I any, O any] struct {
	name string
	fn   ProcessFunc[I, O]
}

// registry is filled during package initialisation and read-only after.
var registry = struct {
	sync.RWMutex
	handlers map[string]proc.Handler
}{handlers: make(map[string]proc.Handler)}

// NewTransform registers fn under name and returns it as a Transform.
// Call it from a package-level variable declaration so the name is
// registered in every process started from the same binary.
// It panics if name is empty, fn is nil, or the name is taken.
func NewTransform[I any, O any](name string, fn ProcessFunc[I, O]) Transform[I, O] {
	if name == "" {
		panic("pool: NewTransform with empty name")
	}
	if fn == nil {
		panic(fmt.Sprintf("pool: NewTransform %q with nil func", name))
	}

	t := Transform[I, O]{name: name, fn: fn}

	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.handlers[name]; dup {
		panic(fmt.Sprintf("pool: transform %q registered twice", name))
	}
	registry.handlers[name] = t.handler()

	return t
}

// Func wraps fn as an unnamed Transform, usable in thread mode only.
func Func[I any, O any](fn ProcessFunc[I, O]) Transform[I, O] {
	return Transform[I, O]{fn: fn}
}

// Name returns the registered name, or "" for transforms built with Func.
func (t Transform[I, O]) Name() string {
	return t.name
}

// Fn returns the underlying function.
func (t Transform[I, O]) Fn() ProcessFunc[I, O] {
	return t.fn
}

func (t Transform[I, O]) handler() proc.Handler {
	return func(ctx context.Context, index int, raw json.RawMessage) (json.RawMessage, error) {
		var item I
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decoding item %d: %w", index, err)
		}

		ctx = contextWithLogger(ctx, LoggerFromContext(ctx).With(zap.Int("index", index)))
		out, err := t.fn(ctx, item)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	}
}

func lookupTransform(name string) (proc.Handler, bool) {
	registry.RLock()
	defer registry.RUnlock()
	h, ok := registry.handlers[name]
	return h, ok
}

// IsWorkerProcess reports whether this process was started by a
// process-mode run and should call ServeWorkerProcess instead of running
// its normal main.
func IsWorkerProcess() bool {
	return proc.IsChild()
}

// ServeWorkerProcess serves items for the parent run until the parent
// closes the connection, and returns the exit code the process should
// exit with.
//
// While serving, file descriptor 1 is redirected to stderr, including
// for writers that captured os.Stdout at init; the original stdout
// carries the protocol.
func ServeWorkerProcess() int {
	env := proc.ReadChildEnv()
	logger := childLogger(env)
	defer func() { _ = logger.Sync() }()

	h, ok := lookupTransform(env.Transform)
	if !ok {
		logger.Error("cannot serve", zap.Error(fmt.Errorf("%w: %q", ErrUnknownTransform, env.Transform)))
		return 2
	}

	protocol, err := proc.TakeStdout()
	if err != nil {
		logger.Error("cannot serve", zap.Error(err))
		return 1
	}
	defer func() { _ = protocol.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = contextWithLogger(ctx, logger)

	logger.Debug("worker process serving", zap.Int("pid", os.Getpid()))
	if err := proc.Serve(ctx, os.Stdin, protocol, h); err != nil {
		logger.Error("worker process failed", zap.Error(err))
		return 1
	}
	return 0
}

func childLogger(env proc.ChildEnv) *zap.Logger {
	if env.LogLevel == "" {
		return zap.NewNop()
	}

	lvl, err := zapcore.ParseLevel(env.LogLevel)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}

	return logger.With(
		zap.String("run_id", env.RunID),
		zap.Int("worker", env.WorkerID),
		zap.String("transform", env.Transform),
	)
}

type loggerKey struct{}

func contextWithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFromContext returns the logger a run attached to the context it
// passes to transforms. It is scoped with the run id, worker and item
// index. Outside a run it returns a no-op logger.
func LoggerFromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}
