// Package crawler implements the event-driven website mirror engine.
//
// One goroutine multiplexes every connection of a run over a single
// readiness loop. Callers drive it through Start, Stop and Run and observe it
// through a Listener.
package crawler

import (
	"errors"
	"time"
)

// ErrAlreadyRunning is returned by Start while a run is in progress.
var ErrAlreadyRunning = errors.New("crawler: engine already running")

// Status texts delivered through Listener.OnStatus.
const (
	StatusReady    = "Ready"
	StatusRunning  = "Running..."
	StatusFinished = "Finished."
)

// Progress is a point-in-time view of the run counters.
type Progress struct {
	Attempted int64 `json:"attempted"`
	OK        int64 `json:"ok"`
	Failed    int64 `json:"failed"`
	Queued    int   `json:"queued"`
	InFlight  int64 `json:"in_flight"`
}

// Summary is delivered once per started run after the loop has stopped.
type Summary struct {
	StartURL   string    `json:"start_url"`
	Attempted  int64     `json:"attempted"`
	OK         int64     `json:"ok"`
	Failed     int64     `json:"failed"`
	OutputDir  string    `json:"output_dir"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Stopped is set when the run ended on Stop rather than exhaustion.
	Stopped bool `json:"stopped"`
	// Err is the readiness failure that ended the run early, if any.
	Err error `json:"-"`
}

// Duration returns how long the run took.
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Listener receives engine notifications. All methods are called from the
// engine's I/O goroutine, except the rejection path of Start which runs on
// the caller's goroutine.
type Listener interface {
	OnLog(line string)
	OnStatus(status string)
	OnProgress(p Progress)
	OnFinished(s Summary)
}

// NopListener ignores every notification.
type NopListener struct{}

func (NopListener) OnLog(string)        {}
func (NopListener) OnStatus(string)     {}
func (NopListener) OnProgress(Progress) {}
func (NopListener) OnFinished(Summary)  {}

// ListenerFuncs adapts optional functions to a Listener. Nil fields are
// ignored.
type ListenerFuncs struct {
	Log      func(line string)
	Status   func(status string)
	Progress func(p Progress)
	Finished func(s Summary)
}

func (l ListenerFuncs) OnLog(line string) {
	if l.Log != nil {
		l.Log(line)
	}
}

func (l ListenerFuncs) OnStatus(status string) {
	if l.Status != nil {
		l.Status(status)
	}
}

func (l ListenerFuncs) OnProgress(p Progress) {
	if l.Progress != nil {
		l.Progress(p)
	}
}

func (l ListenerFuncs) OnFinished(s Summary) {
	if l.Finished != nil {
		l.Finished(s)
	}
}
