package ui

import (
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
	"grokfav/pkg/status"
)

// ProgressSink drives a terminal progress bar from the progress carried by
// status events. The bar is created lazily once a total is known and is
// finished on the first idle or error event after that.
type ProgressSink struct {
	mu          sync.Mutex
	out         io.Writer
	description string
	bar         *progressbar.ProgressBar
	total       int
	completed   int
	done        bool
}

// NewProgressSink creates a progress sink writing to out
func NewProgressSink(out io.Writer, description string) *ProgressSink {
	if description == "" {
		description = "Downloading"
	}
	return &ProgressSink{out: out, description: description}
}

// newBar creates a consistently styled progress bar
func (p *ProgressSink) newBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription(p.description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionClearOnFinish(),
	)
}

// Publish implements status.Sink
func (p *ProgressSink) Publish(e status.Event) {
	if e.Progress == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	total, completed := e.Progress.Total, e.Progress.Completed
	if total <= 0 {
		return
	}

	if p.bar == nil || p.done || total != p.total {
		p.bar = p.newBar(total)
		p.total = total
		p.completed = 0
		p.done = false
	}

	// The bar only moves forward
	if completed > p.completed {
		_ = p.bar.Set(completed)
		p.completed = completed
	}

	if e.State == status.StateIdle || e.State == status.StateError {
		_ = p.bar.Finish()
		p.done = true
	}
}

// Completed returns the last value the bar was set to
func (p *ProgressSink) Completed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed
}

// Finished reports whether the bar has been finished
func (p *ProgressSink) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}
