// Package metrics provides run counters for the mirror engine.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and aggregates run metrics. All methods are safe for
// concurrent use.
type Collector struct {
	// Outcome counters
	attempted atomic.Int64
	ok        atomic.Int64
	failed    atomic.Int64

	// Connection gauge
	inFlight     atomic.Int64
	peakInFlight atomic.Int64

	// Traffic
	bytesReceived atomic.Int64
	bytesWritten  atomic.Int64
	pagesSaved    atomic.Int64
	redirects     atomic.Int64
	linksEnqueued atomic.Int64

	// Response time tracking
	responseTimesSum atomic.Int64
	responseTimesNum atomic.Int64

	// Histograms (buckets for response times in ms)
	responseTimeBuckets [8]atomic.Int64 // <10, <50, <100, <250, <500, <1000, <5000, >=5000

	// Failure breakdown
	errorCounts map[string]*atomic.Int64
	errorMu     sync.RWMutex

	// Status code breakdown
	statusCodes map[int]*atomic.Int64
	statusMu    sync.RWMutex

	startTime atomic.Int64
}

// New creates a new metrics collector.
func New() *Collector {
	c := &Collector{
		errorCounts: make(map[string]*atomic.Int64),
		statusCodes: make(map[int]*atomic.Int64),
	}
	c.startTime.Store(time.Now().UnixNano())
	return c
}

// RecordAttempt counts a job taken from the frontier.
func (c *Collector) RecordAttempt() {
	c.attempted.Add(1)
}

// RecordOK counts a saved page or followed redirect.
func (c *Collector) RecordOK() {
	c.ok.Add(1)
}

// RecordFailure counts a failed job under errorType.
func (c *Collector) RecordFailure(errorType string) {
	c.failed.Add(1)

	c.errorMu.Lock()
	if c.errorCounts[errorType] == nil {
		c.errorCounts[errorType] = &atomic.Int64{}
	}
	c.errorCounts[errorType].Add(1)
	c.errorMu.Unlock()
}

// ConnOpened increments the in-flight gauge and tracks its peak.
func (c *Collector) ConnOpened() int64 {
	n := c.inFlight.Add(1)
	for {
		peak := c.peakInFlight.Load()
		if n <= peak || c.peakInFlight.CompareAndSwap(peak, n) {
			return n
		}
	}
}

// ConnClosed decrements the in-flight gauge. It never goes below zero.
func (c *Collector) ConnClosed() int64 {
	for {
		n := c.inFlight.Load()
		if n <= 0 {
			return 0
		}
		if c.inFlight.CompareAndSwap(n, n-1) {
			return n - 1
		}
	}
}

// Attempted returns the attempted counter.
func (c *Collector) Attempted() int64 { return c.attempted.Load() }

// OK returns the ok counter.
func (c *Collector) OK() int64 { return c.ok.Load() }

// Failed returns the failed counter.
func (c *Collector) Failed() int64 { return c.failed.Load() }

// InFlight returns the open connection count.
func (c *Collector) InFlight() int64 { return c.inFlight.Load() }

// PeakInFlight returns the highest in-flight count since the last reset.
func (c *Collector) PeakInFlight() int64 { return c.peakInFlight.Load() }

// RecordBytes records bytes read from the network.
func (c *Collector) RecordBytes(n int64) {
	c.bytesReceived.Add(n)
}

// RecordPageSaved records a mirrored file of n bytes.
func (c *Collector) RecordPageSaved(n int64) {
	c.pagesSaved.Add(1)
	c.bytesWritten.Add(n)
}

// RecordRedirect records a followed redirect.
func (c *Collector) RecordRedirect() {
	c.redirects.Add(1)
}

// RecordLinksEnqueued records n newly enqueued links.
func (c *Collector) RecordLinksEnqueued(n int) {
	c.linksEnqueued.Add(int64(n))
}

// RecordStatusCode records an HTTP status code.
func (c *Collector) RecordStatusCode(code int) {
	c.statusMu.Lock()
	if c.statusCodes[code] == nil {
		c.statusCodes[code] = &atomic.Int64{}
	}
	c.statusCodes[code].Add(1)
	c.statusMu.Unlock()
}

// RecordResponseTime records the time from admission to end of stream.
func (c *Collector) RecordResponseTime(d time.Duration) {
	ms := d.Milliseconds()
	c.responseTimesSum.Add(ms)
	c.responseTimesNum.Add(1)
	c.responseTimeBuckets[bucket(ms)].Add(1)
}

func bucket(ms int64) int {
	switch {
	case ms < 10:
		return 0
	case ms < 50:
		return 1
	case ms < 100:
		return 2
	case ms < 250:
		return 3
	case ms < 500:
		return 4
	case ms < 1000:
		return 5
	case ms < 5000:
		return 6
	default:
		return 7
	}
}

// AverageResponseTime returns the mean response time.
func (c *Collector) AverageResponseTime() time.Duration {
	sum := c.responseTimesSum.Load()
	num := c.responseTimesNum.Load()
	if num == 0 {
		return 0
	}
	return time.Duration(sum/num) * time.Millisecond
}

// Snapshot returns a point-in-time copy of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	s := &Snapshot{
		Timestamp:           time.Now(),
		Uptime:              time.Since(time.Unix(0, c.startTime.Load())),
		Attempted:           c.attempted.Load(),
		OK:                  c.ok.Load(),
		Failed:              c.failed.Load(),
		InFlight:            c.inFlight.Load(),
		PeakInFlight:        c.peakInFlight.Load(),
		BytesReceived:       c.bytesReceived.Load(),
		BytesWritten:        c.bytesWritten.Load(),
		PagesSaved:          c.pagesSaved.Load(),
		Redirects:           c.redirects.Load(),
		LinksEnqueued:       c.linksEnqueued.Load(),
		AverageResponseTime: c.AverageResponseTime(),
		ErrorCounts:         make(map[string]int64),
		StatusCodes:         make(map[int]int64),
		ResponseTimeHist:    make([]int64, len(c.responseTimeBuckets)),
	}

	c.errorMu.RLock()
	for k, v := range c.errorCounts {
		s.ErrorCounts[k] = v.Load()
	}
	c.errorMu.RUnlock()

	c.statusMu.RLock()
	for k, v := range c.statusCodes {
		s.StatusCodes[k] = v.Load()
	}
	c.statusMu.RUnlock()

	for i := range c.responseTimeBuckets {
		s.ResponseTimeHist[i] = c.responseTimeBuckets[i].Load()
	}

	return s
}

// Reset zeroes every metric for a new run.
func (c *Collector) Reset() {
	c.attempted.Store(0)
	c.ok.Store(0)
	c.failed.Store(0)
	c.inFlight.Store(0)
	c.peakInFlight.Store(0)
	c.bytesReceived.Store(0)
	c.bytesWritten.Store(0)
	c.pagesSaved.Store(0)
	c.redirects.Store(0)
	c.linksEnqueued.Store(0)
	c.responseTimesSum.Store(0)
	c.responseTimesNum.Store(0)

	for i := range c.responseTimeBuckets {
		c.responseTimeBuckets[i].Store(0)
	}

	c.errorMu.Lock()
	c.errorCounts = make(map[string]*atomic.Int64)
	c.errorMu.Unlock()

	c.statusMu.Lock()
	c.statusCodes = make(map[int]*atomic.Int64)
	c.statusMu.Unlock()

	c.startTime.Store(time.Now().UnixNano())
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp           time.Time        `json:"timestamp"`
	Uptime              time.Duration    `json:"uptime"`
	Attempted           int64            `json:"attempted"`
	OK                  int64            `json:"ok"`
	Failed              int64            `json:"failed"`
	InFlight            int64            `json:"in_flight"`
	PeakInFlight        int64            `json:"peak_in_flight"`
	BytesReceived       int64            `json:"bytes_received"`
	BytesWritten        int64            `json:"bytes_written"`
	PagesSaved          int64            `json:"pages_saved"`
	Redirects           int64            `json:"redirects"`
	LinksEnqueued       int64            `json:"links_enqueued"`
	AverageResponseTime time.Duration    `json:"average_response_time"`
	ErrorCounts         map[string]int64 `json:"error_counts"`
	StatusCodes         map[int]int64    `json:"status_codes"`
	ResponseTimeHist    []int64          `json:"response_time_histogram"`
}

// FailureRate returns failed/attempted.
func (s *Snapshot) FailureRate() float64 {
	if s.Attempted == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Attempted)
}

// Summary returns a flat map for structured logging.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":               s.Uptime.String(),
		"attempted":            s.Attempted,
		"ok":                   s.OK,
		"failed":               s.Failed,
		"failure_rate":         s.FailureRate(),
		"pages_saved":          s.PagesSaved,
		"redirects":            s.Redirects,
		"bytes_received":       s.BytesReceived,
		"peak_in_flight":       s.PeakInFlight,
		"avg_response_time_ms": s.AverageResponseTime.Milliseconds(),
	}
}
