package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// SweepProgress renders a single updating status line while a sweep
// pages through the feed. The post total is unknown up front, so it
// counts up instead of drawing a bar.
type SweepProgress struct {
	mu      sync.Mutex
	writer  io.Writer
	started time.Time
	scanned int
	matched int
	dirty   bool
}

// NewSweepProgress creates a progress reporter that writes to w.
// If w is nil, it defaults to os.Stderr.
func NewSweepProgress(w io.Writer) *SweepProgress {
	if w == nil {
		w = os.Stderr
	}
	return &SweepProgress{
		writer:  w,
		started: time.Now(),
	}
}

// Scanned updates the number of posts examined so far.
func (p *SweepProgress) Scanned(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.scanned = n
	p.render()
}

// Matched updates the number of posts that met the criteria.
func (p *SweepProgress) Matched(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.matched = n
	p.render()
}

// Finish terminates the status line so later output starts fresh.
func (p *SweepProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dirty {
		fmt.Fprintln(p.writer)
	}
}

func (p *SweepProgress) render() {
	rate := 0.0
	if secs := time.Since(p.started).Seconds(); secs > 0 {
		rate = float64(p.scanned) / secs
	}

	fmt.Fprintf(p.writer, "\rscanned %d posts, matched %d (%.1f posts/s)", p.scanned, p.matched, rate)
	p.dirty = true
}
