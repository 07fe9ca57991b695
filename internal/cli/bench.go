package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
)

// BenchRow is one measured worker count.
type BenchRow struct {
	Workers int
	Items   int
	Elapsed time.Duration
	Err     error
}

// Speedup returns baseline/elapsed, or 0 when either is unknown.
func Speedup(baseline, elapsed time.Duration) float64 {
	if baseline <= 0 || elapsed <= 0 {
		return 0
	}
	return float64(baseline) / float64(elapsed)
}

// RenderBench writes the speed-up table. The first successful row is the
// baseline.
func RenderBench(w io.Writer, rows []BenchRow) error {
	var baseline time.Duration
	for _, r := range rows {
		if r.Err == nil {
			baseline = r.Elapsed
			break
		}
	}

	table := tablewriter.NewWriter(w)
	table.Header("Workers", "Time", "Items/sec", "Speed-up", "Status")

	for _, r := range rows {
		if r.Err != nil {
			_ = table.Append(fmt.Sprint(r.Workers), "-", "-", "-", "failed: "+r.Err.Error())
			continue
		}

		perSec := 0
		if r.Elapsed > 0 {
			perSec = int(float64(r.Items) / r.Elapsed.Seconds())
		}
		_ = table.Append(
			fmt.Sprint(r.Workers),
			FormatLatency(r.Elapsed),
			FormatNumber(perSec),
			fmt.Sprintf("%.2fx", Speedup(baseline, r.Elapsed)),
			"ok",
		)
	}

	return table.Render()
}
