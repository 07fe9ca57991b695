package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/utkarsh5026/parmap/pool"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	tests := []struct {
		command string
		workers int
		mode    string
	}{
		{"squares", 3, "process"},
		{"factorial", runtime.GOMAXPROCS(0), "process"},
		{"tickers", 2, "thread"},
		{"bench", runtime.GOMAXPROCS(0), "process"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			cfg, err := Load(tt.command, nil)
			require.NoError(t, err)

			assert.Equal(t, tt.workers, cfg.Workers)
			assert.Equal(t, tt.mode, cfg.Mode)
			assert.Equal(t, "shared", cfg.Scheduling)
			assert.Zero(t, cfg.Retries)
			assert.Equal(t, "warn", cfg.LogLevel)
			assert.Zero(t, cfg.Timeout)
		})
	}
}

func TestLoad_CommandFlags(t *testing.T) {
	cfg, err := Load("tickers", []string{"--step", "250ms"})
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Step)

	cfg, err = Load("squares", []string{"--slow", "7", "8"})
	require.NoError(t, err)
	assert.True(t, cfg.Slow)
	assert.Equal(t, []string{"7", "8"}, cfg.Args)

	cfg, err = Load("bench", []string{"--max-workers=3"})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxWorkers)

	_, err = Load("factorial", []string{"--slow"})
	assert.Error(t, err, "--slow only exists on squares")
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, "parmap.yaml", `
workers: 5
scheduling: round-robin
timeout: 30s
retries: 4
`)

	t.Run("file over default", func(t *testing.T) {
		cfg, err := Load("factorial", []string{"--config", path})
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Workers)
		assert.Equal(t, "round-robin", cfg.Scheduling)
		assert.Equal(t, 30*time.Second, cfg.Timeout)
		assert.Equal(t, 4, cfg.Retries)
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("PARMAP_WORKERS", "6")
		t.Setenv("PARMAP_RETRY_DELAY", "2s")

		cfg, err := Load("factorial", []string{"--config", path})
		require.NoError(t, err)
		assert.Equal(t, 6, cfg.Workers)
		assert.Equal(t, 2*time.Second, cfg.RetryDelay)
		assert.Equal(t, "round-robin", cfg.Scheduling)
	})

	t.Run("flag over env", func(t *testing.T) {
		t.Setenv("PARMAP_WORKERS", "6")

		cfg, err := Load("factorial", []string{"--config", path, "-w", "7"})
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Workers)
	})
}

func TestLoad_ConfigFormats(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"parmap.json", `{"mode": "thread", "backoff": "jittered"}`},
		{"parmap.toml", "mode = \"thread\"\nbackoff = \"jittered\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("factorial", []string{"--config", writeConfig(t, tt.name, tt.body)})
			require.NoError(t, err)
			assert.Equal(t, "thread", cfg.Mode)
			assert.Equal(t, "jittered", cfg.Backoff)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"unknown flag", []string{"--nope"}, nil},
		{"zero workers", []string{"-w", "0"}, nil},
		{"bad mode", []string{"--mode", "fiber"}, nil},
		{"bad scheduling", []string{"--scheduling", "random"}, nil},
		{"bad backoff", []string{"--backoff", "linear"}, nil},
		{"bad log level", []string{"--log-level", "loud"}, nil},
		{"bad log format", []string{"--log-format", "xml"}, nil},
		{"negative retries", []string{"--retries", "-1"}, nil},
		{"bad burst", []string{"--rate", "5", "--burst", "0"}, nil},
		{"missing config file", []string{"--config", "/nonexistent/parmap.yaml"}, nil},
		{"bad env value", nil, map[string]string{"PARMAP_MODE": "gpu"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("factorial", tt.args)
			assert.Error(t, err)
		})
	}
}

func TestLoad_Help(t *testing.T) {
	_, err := Load("squares", []string{"--help"})
	assert.ErrorIs(t, err, ErrHelp)
}

func TestConfig_PoolOptions(t *testing.T) {
	cfg, err := Load("factorial", []string{
		"-w", "2", "--mode", "thread", "--timeout", "1s", "--rate", "100", "--burst", "2", "--affinity",
	})
	require.NoError(t, err)

	opts := cfg.PoolOptions()
	assert.Len(t, opts, 8)

	results, report, err := pool.MapThreads(context.Background(), []int{1, 2, 3},
		func(_ context.Context, n int) (int, error) { return n, nil }, cfg.Workers, opts...)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, results)
	assert.Equal(t, pool.ModeThread, report.Mode)
}

func TestConfig_RetriesAreOnTopOfFirstAttempt(t *testing.T) {
	tests := []struct {
		retries  string
		attempts int32
	}{
		{"0", 1},
		{"2", 3},
	}

	for _, tt := range tests {
		t.Run("retries="+tt.retries, func(t *testing.T) {
			cfg, err := Load("factorial", []string{"--mode", "thread", "--retries", tt.retries, "--retry-delay", "1ms"})
			require.NoError(t, err)

			var calls atomic.Int32
			_, _, err = pool.MapThreads(context.Background(), []int{1},
				func(context.Context, int) (int, error) {
					calls.Add(1)
					return 0, errors.New("always fails")
				}, 1, cfg.PoolOptions()...)

			require.Error(t, err)
			assert.Equal(t, tt.attempts, calls.Load())
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		cfg, err := Load("factorial", []string{"--log-format", format, "--log-level", "debug"})
		require.NoError(t, err)

		logger, err := cfg.NewLogger()
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel), "debug should be enabled")
	}
}
