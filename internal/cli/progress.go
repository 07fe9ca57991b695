package cli

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/utkarsh5026/parmap/pool"
)

// NewProgressBar returns a bar for total items written to w.
func NewProgressBar(total int, description string, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(w),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// ProgressHook advances bar once per successful item. Pass it to
// pool.WithOnTaskEnd.
func ProgressHook(bar *progressbar.ProgressBar) func(pool.TaskEvent) {
	return func(e pool.TaskEvent) {
		if e.Err == nil {
			_ = bar.Add(1)
		}
	}
}
