package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	track "mcfetch/internal/progress"
)

// Plain prints a single-line file counter for non-interactive terminals
// and log-friendly output.
type Plain struct {
	tracker  *track.Tracker
	w        io.Writer
	interval time.Duration
}

// NewPlain creates a reporter writing to w (stderr when nil).
func NewPlain(tracker *track.Tracker, w io.Writer) *Plain {
	if w == nil {
		w = os.Stderr
	}
	return &Plain{tracker: tracker, w: w, interval: 200 * time.Millisecond}
}

// Run renders until the tracker reaches StateFinished or ctx is done.
// A new bar starts whenever the phase or the batch size changes.
func (p *Plain) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var (
		bar   *progressbar.ProgressBar
		state = track.StateIdle
		total = -1
	)
	for {
		snap := p.tracker.Snapshot()
		if snap.State != track.StateIdle {
			if bar == nil || (snap.State != state && snap.State != track.StateFinished) || snap.Total != total {
				if bar != nil {
					fmt.Fprintln(p.w)
				}
				bar = p.newBar(snap)
				state, total = snap.State, snap.Total
			}
			bar.Set(snap.Completed)
		}

		if snap.State == track.StateFinished {
			bar.Finish()
			fmt.Fprintf(p.w, "\n%s\n", Summary(snap))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Plain) newBar(s track.Snapshot) *progressbar.ProgressBar {
	n := int64(s.Total)
	if n <= 0 {
		n = -1 // spinner
	}
	return progressbar.NewOptions64(
		n,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(s.State.String()),
		progressbar.OptionSetItsString("file"),
		progressbar.OptionShowIts(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
