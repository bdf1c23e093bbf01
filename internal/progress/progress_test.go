package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Percent Tests
// =============================================================================

func TestPercent(t *testing.T) {
	tests := []struct {
		name                          string
		attempted, ok, failed, queued int
		want                          int
	}{
		{"nothing yet", 0, 0, 0, 0, 0},
		{"only queued", 0, 0, 0, 5, 0},
		{"half done", 2, 1, 1, 2, 50},
		{"in flight", 4, 1, 0, 0, 25},
		{"finished", 3, 2, 1, 0, 100},
		{"mostly done", 100, 99, 0, 1, 98},
		{"never 100 with queue", 1000, 999, 0, 1, 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Percent(tt.attempted, tt.ok, tt.failed, tt.queued); got != tt.want {
				t.Errorf("Percent() = %d, want %d", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Display Tests
// =============================================================================

func TestDisplay_UpdateBeforeStart(t *testing.T) {
	var buf bytes.Buffer
	d := NewWithWriter(&buf)
	d.Update(1, 1, 0, 0, 0)

	if buf.Len() != 0 {
		t.Errorf("Update before Start wrote %q", buf.String())
	}
	if a, ok, _, _, _ := d.Stats(); a != 1 || ok != 1 {
		t.Errorf("Stats() = %d, %d; counters should still be stored", a, ok)
	}
}

func TestDisplay_Update(t *testing.T) {
	var buf bytes.Buffer
	d := NewWithWriter(&buf)
	d.Start("http://example.com/")
	d.Update(4, 2, 1, 3, 1)

	out := buf.String()
	for _, want := range []string{"OK: 2", "Failed: 1", "Queue: 3", "Active: 1", "42%"} {
		if !strings.Contains(out, want) {
			t.Errorf("progress line %q missing %q", out, want)
		}
	}
}

func TestDisplay_StopIdempotent(t *testing.T) {
	var buf bytes.Buffer
	d := NewWithWriter(&buf)
	d.Start("http://example.com/")
	d.Stop()
	d.Stop()

	if buf.String() != "\n" {
		t.Errorf("Stop output = %q, want single newline", buf.String())
	}

	d.Update(1, 1, 0, 0, 0)
	if buf.String() != "\n" {
		t.Error("Update after Stop should not draw")
	}
}

func TestDisplay_PrintSummary(t *testing.T) {
	var buf bytes.Buffer
	d := NewWithWriter(&buf)
	d.Start("http://example.com/")
	d.Update(3, 2, 1, 0, 0)
	d.Stop()
	buf.Reset()

	d.PrintSummary("/tmp/mirror")

	out := buf.String()
	for _, want := range []string{"Mirror Complete", "http://example.com/", "/tmp/mirror", "Saved:               2", "Failed:              1"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

// =============================================================================
// Formatting Tests
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{90 * time.Second, "1m30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h02m03s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncateURL(t *testing.T) {
	if got := truncateURL("http://a.b/", 50); got != "http://a.b/" {
		t.Errorf("short URL changed: %q", got)
	}
	long := "http://example.com/" + strings.Repeat("x", 60)
	got := truncateURL(long, 20)
	if len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncateURL() = %q", got)
	}
}
