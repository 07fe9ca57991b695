// Package cli renders parmap command output: status lines, progress bars
// and result tables.
package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/utkarsh5026/parmap/pool"
)

// Color helpers shared by all commands.
var (
	Bold   = color.New(color.Bold)
	Green  = color.New(color.FgGreen)
	Red    = color.New(color.FgRed)
	Yellow = color.New(color.FgYellow)
	Cyan   = color.New(color.FgCyan)
)

// UI writes command output to Out and diagnostics to Err.
type UI struct {
	Out io.Writer
	Err io.Writer
}

// Println writes a plain line to Out.
func (u *UI) Println(a ...any) {
	_, _ = fmt.Fprintln(u.Out, a...)
}

// Printf writes formatted text to Out.
func (u *UI) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(u.Out, format, a...)
}

// Header prints a bold section title.
func (u *UI) Header(title string, descriptions ...string) {
	_, _ = Bold.Fprintln(u.Out, title)
	for _, d := range descriptions {
		_, _ = fmt.Fprintln(u.Out, d)
	}
}

// Summary prints the one-line outcome of a run.
func (u *UI) Summary(r pool.Report) {
	line := fmt.Sprintf("%s %s items on %d %s workers in %s",
		r.State, FormatNumber(r.Items), r.Workers, r.Mode, FormatLatency(r.Elapsed))

	switch r.State {
	case pool.StateCompleted:
		_, _ = Green.Fprintln(u.Err, "✅ "+line)
	case pool.StateCancelled:
		_, _ = Yellow.Fprintln(u.Err, "⚠️  "+line)
	default:
		_, _ = Red.Fprintln(u.Err, "❌ "+line)
	}
}

// Elapsed prints the batch time the way the demo scripts report it.
func (u *UI) Elapsed(d time.Duration) {
	_, _ = Cyan.Fprintf(u.Out, "Time taken : %.6f seconds\n", d.Seconds())
}

// Error prints err to Err in red.
func (u *UI) Error(err error) {
	_, _ = Red.Fprintf(u.Err, "error: %s\n", strings.TrimSpace(err.Error()))
}
