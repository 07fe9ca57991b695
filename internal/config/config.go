// Package config loads parmap command configuration from flags, the
// environment and an optional config file.
//
// Precedence, highest first: command-line flag, PARMAP_* environment
// variable, config file, built-in default.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/utkarsh5026/parmap/pool"
)

// EnvPrefix prefixes every environment variable the commands read.
const EnvPrefix = "PARMAP"

// ErrHelp is returned by Load when -h or --help was given.
var ErrHelp = pflag.ErrHelp

// Config is the merged configuration of one command invocation.
type Config struct {
	Workers    int           `mapstructure:"workers"`
	Mode       string        `mapstructure:"mode"`
	Scheduling string        `mapstructure:"scheduling"`
	Timeout    time.Duration `mapstructure:"timeout"`

	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry-delay"`
	Backoff    string        `mapstructure:"backoff"`
	Rate       float64       `mapstructure:"rate"`
	Burst      int           `mapstructure:"burst"`
	Affinity   bool          `mapstructure:"affinity"`

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`
	Progress  bool   `mapstructure:"progress"`
	Metrics   bool   `mapstructure:"metrics"`

	Slow       bool          `mapstructure:"slow"`
	Step       time.Duration `mapstructure:"step"`
	MaxWorkers int           `mapstructure:"max-workers"`

	// Args are the positional arguments left after flag parsing.
	Args []string `mapstructure:"-"`
}

// Defaults are the per-command values used when nothing else is set.
type Defaults struct {
	Workers int
	Mode    pool.Mode
}

// ForCommand returns the defaults for a parmap subcommand.
func ForCommand(command string) Defaults {
	switch command {
	case "squares":
		return Defaults{Workers: 3, Mode: pool.ModeProcess}
	case "tickers":
		return Defaults{Workers: 2, Mode: pool.ModeThread}
	default:
		return Defaults{Workers: runtime.GOMAXPROCS(0), Mode: pool.ModeProcess}
	}
}

// NewFlagSet declares the flags shared by every command.
func NewFlagSet(command string, d Defaults) *pflag.FlagSet {
	fs := pflag.NewFlagSet(command, pflag.ContinueOnError)
	fs.SortFlags = false

	fs.String("config", "", "path to a config file (yaml, json or toml)")
	fs.IntP("workers", "w", d.Workers, "number of workers")
	fs.StringP("mode", "m", d.Mode.String(), "execution mode: thread or process")
	fs.String("scheduling", "shared", "item distribution: shared, round-robin or work-stealing")
	fs.Duration("timeout", 0, "abort the batch after this long (0 = no limit)")

	fs.Int("retries", 0, "retries per failed item on top of the first attempt")
	fs.Duration("retry-delay", 100*time.Millisecond, "delay before the first retry")
	fs.String("backoff", "exponential", "retry backoff: exponential, jittered or decorrelated")
	fs.Float64("rate", 0, "max item attempts per second (0 = unlimited)")
	fs.Int("burst", 1, "rate limiter burst size")
	fs.Bool("affinity", false, "pin thread workers to CPU cores")

	fs.String("log-level", "warn", "log level: debug, info, warn or error")
	fs.String("log-format", "console", "log format: console or json")
	fs.Bool("progress", false, "show a progress bar")
	fs.Bool("metrics", false, "print a metrics summary after the run")

	switch command {
	case "squares":
		fs.Bool("slow", false, "sleep one second per item")
	case "tickers":
		fs.Duration("step", 2*time.Second, "delay before each printed value")
	case "bench":
		fs.Int("max-workers", runtime.GOMAXPROCS(0), "largest worker count to measure")
	}

	return fs
}

// Load parses args for command and merges flags, environment and the
// config file into a Config.
func Load(command string, args []string) (*Config, error) {
	fs := NewFlagSet(command, ForCommand(command))
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := newViper()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Args = fs.Args()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Validate checks the enumerated and numeric settings.
func (c *Config) Validate() error {
	var errs []error

	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if _, err := pool.ParseMode(c.Mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := pool.ParseScheduling(c.Scheduling); err != nil {
		errs = append(errs, err)
	}
	if _, err := pool.ParseBackoff(c.Backoff); err != nil {
		errs = append(errs, err)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative, got %d", c.Retries))
	}
	if c.Rate < 0 || c.Burst <= 0 {
		errs = append(errs, fmt.Errorf("invalid rate limit %v/s burst %d", c.Rate, c.Burst))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %v", c.Timeout))
	}

	return errors.Join(errs...)
}

// PoolOptions turns the run settings into pool options. It assumes
// Validate passed.
func (c *Config) PoolOptions() []pool.Option {
	mode, _ := pool.ParseMode(c.Mode)
	sched, _ := pool.ParseScheduling(c.Scheduling)
	backoff, _ := pool.ParseBackoff(c.Backoff)

	opts := []pool.Option{
		pool.WithWorkerCount(c.Workers),
		pool.WithMode(mode),
		pool.WithScheduling(sched),
		pool.WithRetryPolicy(c.Retries+1, c.RetryDelay),
		pool.WithBackoff(backoff, 0, -1),
	}
	if c.Timeout > 0 {
		opts = append(opts, pool.WithTimeout(c.Timeout))
	}
	if c.Rate > 0 {
		opts = append(opts, pool.WithRateLimit(c.Rate, c.Burst))
	}
	if c.Affinity {
		opts = append(opts, pool.WithCPUAffinity())
	}
	return opts
}

// NewLogger builds the zap logger selected by log-level and log-format.
// Logs go to stderr so they never mix with command output.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	zc := zap.NewDevelopmentConfig()
	if c.LogFormat == "json" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	return zc.Build()
}
