package output

import (
	"time"

	"github.com/PentesterFlow/OpenMirror/internal/metrics"
)

// Report summarizes one mirror run.
type Report struct {
	Target      string           `json:"target" yaml:"target"`
	OutputDir   string           `json:"output_dir" yaml:"output_dir"`
	StartedAt   time.Time        `json:"started_at" yaml:"started_at"`
	CompletedAt time.Time        `json:"completed_at" yaml:"completed_at"`
	Duration    time.Duration    `json:"duration" yaml:"duration"`
	Stopped     bool             `json:"stopped" yaml:"stopped"`
	Statistics  Statistics       `json:"statistics" yaml:"statistics"`
	StatusCodes map[int]int64    `json:"status_codes" yaml:"status_codes"`
	Failures    map[string]int64 `json:"failures" yaml:"failures"`
	Pages       []PageEntry      `json:"pages,omitempty" yaml:"pages,omitempty"`
}

// Statistics contains run counters.
type Statistics struct {
	Attempted         int64   `json:"attempted" yaml:"attempted"`
	OK                int64   `json:"ok" yaml:"ok"`
	Failed            int64   `json:"failed" yaml:"failed"`
	PagesSaved        int64   `json:"pages_saved" yaml:"pages_saved"`
	Redirects         int64   `json:"redirects" yaml:"redirects"`
	LinksEnqueued     int64   `json:"links_enqueued" yaml:"links_enqueued"`
	BytesReceived     int64   `json:"bytes_received" yaml:"bytes_received"`
	BytesWritten      int64   `json:"bytes_written" yaml:"bytes_written"`
	PeakInFlight      int64   `json:"peak_in_flight" yaml:"peak_in_flight"`
	AvgResponseTimeMs int64   `json:"avg_response_time_ms" yaml:"avg_response_time_ms"`
	FailureRate       float64 `json:"failure_rate" yaml:"failure_rate"`
}

// PageEntry is one mirrored file.
type PageEntry struct {
	URL         string `json:"url" yaml:"url"`
	LocalPath   string `json:"local_path" yaml:"local_path"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	StatusCode  int    `json:"status_code" yaml:"status_code"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Bytes       int    `json:"bytes" yaml:"bytes"`
	Depth       int    `json:"depth" yaml:"depth"`
}

// NewReport builds a report from a metrics snapshot.
func NewReport(target, outputDir string, startedAt, completedAt time.Time, stopped bool, snap *metrics.Snapshot) *Report {
	r := &Report{
		Target:      target,
		OutputDir:   outputDir,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Stopped:     stopped,
		StatusCodes: make(map[int]int64),
		Failures:    make(map[string]int64),
	}
	if snap == nil {
		return r
	}

	r.Statistics = Statistics{
		Attempted:         snap.Attempted,
		OK:                snap.OK,
		Failed:            snap.Failed,
		PagesSaved:        snap.PagesSaved,
		Redirects:         snap.Redirects,
		LinksEnqueued:     snap.LinksEnqueued,
		BytesReceived:     snap.BytesReceived,
		BytesWritten:      snap.BytesWritten,
		PeakInFlight:      snap.PeakInFlight,
		AvgResponseTimeMs: snap.AverageResponseTime.Milliseconds(),
		FailureRate:       snap.FailureRate(),
	}
	for k, v := range snap.StatusCodes {
		r.StatusCodes[k] = v
	}
	for k, v := range snap.ErrorCounts {
		r.Failures[k] = v
	}
	return r
}

// AddPage appends a mirrored file to the report.
func (r *Report) AddPage(p PageEntry) {
	r.Pages = append(r.Pages, p)
}
