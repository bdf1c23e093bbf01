package crawler

import (
	"context"
	"time"

	"github.com/PentesterFlow/OpenMirror/internal/logger"
	"github.com/PentesterFlow/OpenMirror/internal/metrics"
	"github.com/PentesterFlow/OpenMirror/internal/netpoll"
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// Dialer opens non-blocking connections. The bool reports a connect that
// completed synchronously.
type Dialer interface {
	Dial(ctx context.Context, address string) (netpoll.Conn, bool, error)
}

// WithLogger sets the structured logger. Engine events are logged at debug
// level with component=engine.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l.WithComponent("engine")
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithClock sets the time source used for deadlines and rate limiting.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithDialer replaces the socket dialer.
func WithDialer(d Dialer) Option {
	return func(e *Engine) {
		if d != nil {
			e.dialer = d
		}
	}
}

// WithPollerFactory replaces the readiness poller created for each run.
func WithPollerFactory(f func() (netpoll.Poller, error)) Option {
	return func(e *Engine) {
		if f != nil {
			e.newPoller = f
		}
	}
}
