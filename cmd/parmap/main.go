// Command parmap runs the parallel map demos: squares and factorials on a
// process pool, two tickers on threads, and a worker-count benchmark.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/utkarsh5026/parmap/internal/cli"
	"github.com/utkarsh5026/parmap/internal/config"
	"github.com/utkarsh5026/parmap/pool"
)

const (
	exitOK    = 0
	exitRun   = 1
	exitUsage = 2
)

const usage = `usage: parmap <command> [flags] [items...]

commands:
  squares     square integers on a process pool (default 1 2 3 4 5)
  factorial   compute big factorials on a process pool (default 300 400 500 600)
  tickers     print two sequences concurrently on threads
  bench       time the factorial batch for 1..max-workers workers

run 'parmap <command> --help' for the command's flags
`

func main() {
	if pool.IsWorkerProcess() {
		os.Exit(pool.ServeWorkerProcess())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	ui := &cli.UI{Out: stdout, Err: stderr}

	if len(args) == 0 {
		_, _ = io.WriteString(stderr, usage)
		return exitUsage
	}

	command, args := args[0], args[1:]
	cmd, ok := commands[command]
	if !ok {
		if command == "help" || command == "-h" || command == "--help" {
			_, _ = io.WriteString(stdout, usage)
			return exitOK
		}
		ui.Error(fmt.Errorf("unknown command %q", command))
		_, _ = io.WriteString(stderr, usage)
		return exitUsage
	}

	cfg, err := config.Load(command, args)
	if errors.Is(err, config.ErrHelp) {
		return exitOK
	}
	if err != nil {
		ui.Error(err)
		return exitUsage
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		ui.Error(err)
		return exitUsage
	}
	defer func() { _ = logger.Sync() }()

	e := &env{cfg: cfg, ui: ui, logger: logger}
	if err := cmd(ctx, e); err != nil {
		ui.Error(err)
		var ue usageError
		if errors.As(err, &ue) {
			return exitUsage
		}
		return exitRun
	}
	return exitOK
}
