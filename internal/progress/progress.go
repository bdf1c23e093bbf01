// Package progress provides progress bar display for the mirror engine.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Display manages progress bar display during mirroring.
type Display struct {
	mu      sync.Mutex
	out     io.Writer
	started bool
	stopped bool

	// Stats
	attempted atomic.Int64
	ok        atomic.Int64
	failed    atomic.Int64
	queued    atomic.Int64
	inFlight  atomic.Int64

	// Timing
	startTime time.Time
	target    string

	// Display
	lastLine string
}

// New creates a new progress display writing to stderr.
func New() *Display {
	return NewWithWriter(os.Stderr)
}

// NewWithWriter creates a progress display writing to out.
func NewWithWriter(out io.Writer) *Display {
	return &Display{out: out}
}

// Start begins the progress display.
func (d *Display) Start(target string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}

	d.started = true
	d.startTime = time.Now()
	d.target = target
}

// Update redraws the progress line with current counters.
func (d *Display) Update(attempted, ok, failed, queued, inFlight int) {
	d.attempted.Store(int64(attempted))
	d.ok.Store(int64(ok))
	d.failed.Store(int64(failed))
	d.queued.Store(int64(queued))
	d.inFlight.Store(int64(inFlight))

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started || d.stopped {
		return
	}

	percent := Percent(attempted, ok, failed, queued)

	elapsed := time.Since(d.startTime)
	speed := float64(0)
	if elapsed.Seconds() > 0 {
		speed = float64(ok+failed) / elapsed.Seconds()
	}

	barWidth := 30
	filled := percent * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("\r[%s] %3d%% | OK: %d | Failed: %d | Queue: %d | Active: %d | %.1f p/s | %s",
		bar, percent, ok, failed, queued, inFlight, speed, formatDuration(elapsed))

	if len(line) < len(d.lastLine) {
		fmt.Fprint(d.out, "\r"+strings.Repeat(" ", len(d.lastLine)))
	}
	fmt.Fprint(d.out, line)
	d.lastLine = line
}

// Percent estimates completion from finished fetches against all known work.
// It only reports 100 once nothing is queued or in flight.
func Percent(attempted, ok, failed, queued int) int {
	done := ok + failed
	total := attempted + queued
	if total == 0 {
		return 0
	}
	if queued == 0 && done >= attempted && done > 0 {
		return 100
	}
	p := done * 100 / total
	if p > 99 {
		p = 99
	}
	return p
}

// Stop stops the progress display.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.started {
		return
	}

	d.stopped = true
	fmt.Fprintln(d.out)
}

// PrintSummary prints a final summary after mirroring.
func (d *Display) PrintSummary(outputDir string) {
	duration := time.Since(d.startTime)
	done := d.ok.Load() + d.failed.Load()

	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(d.out, "║                       Mirror Complete                        ║")
	fmt.Fprintln(d.out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(d.out)
	fmt.Fprintf(d.out, "  Target:              %s\n", truncateURL(d.target, 50))
	fmt.Fprintf(d.out, "  Output:              %s\n", truncateURL(outputDir, 50))
	fmt.Fprintf(d.out, "  Duration:            %s\n", formatDuration(duration))
	fmt.Fprintf(d.out, "  Attempted:           %d\n", d.attempted.Load())
	fmt.Fprintf(d.out, "  Saved:               %d\n", d.ok.Load())
	fmt.Fprintf(d.out, "  Failed:              %d\n", d.failed.Load())
	fmt.Fprintln(d.out)

	if duration.Seconds() > 0 {
		fmt.Fprintf(d.out, "  Average Speed:       %.1f pages/sec\n", float64(done)/duration.Seconds())
		fmt.Fprintln(d.out)
	}
}

// Stats returns the last counters passed to Update.
func (d *Display) Stats() (attempted, ok, failed, queued, inFlight int64) {
	return d.attempted.Load(),
		d.ok.Load(),
		d.failed.Load(),
		d.queued.Load(),
		d.inFlight.Load()
}

// truncateURL truncates a URL to maxLen characters.
func truncateURL(url string, maxLen int) string {
	if len(url) <= maxLen {
		return url
	}
	return url[:maxLen-3] + "..."
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
