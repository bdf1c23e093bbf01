// Package ratelimit paces how fast the engine opens new connections.
//
// The engine's loop never blocks on the limiter: it asks AllowAt on each
// turn and leaves the job queued when no token is available.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter implements connection admission limits, globally and per host.
type Limiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	perHost     map[string]*rate.Limiter
	hostRate    rate.Limit
	hostBurst   int
	denied      int64
	defaultRate rate.Limit
}

// NewLimiter creates a limiter admitting connectionsPerSecond with the given
// burst. A non-positive rate disables limiting.
func NewLimiter(connectionsPerSecond float64, burst int) *Limiter {
	limit := rate.Inf
	if connectionsPerSecond > 0 {
		limit = rate.Limit(connectionsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter:     rate.NewLimiter(limit, burst),
		perHost:     make(map[string]*rate.Limiter),
		hostRate:    rate.Inf,
		hostBurst:   1,
		defaultRate: limit,
	}
}

// Unlimited reports whether the global limit is disabled.
func (l *Limiter) Unlimited() bool {
	return l.defaultRate == rate.Inf
}

// SetHostRate sets a per-host limit applied on top of the global one.
func (l *Limiter) SetHostRate(connectionsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.hostRate = rate.Inf
	if connectionsPerSecond > 0 {
		l.hostRate = rate.Limit(connectionsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	l.hostBurst = burst
	l.perHost = make(map[string]*rate.Limiter)
}

// Allow checks if a connection may be opened now.
func (l *Limiter) Allow(host string) bool {
	return l.AllowAt(host, time.Now())
}

// AllowAt checks if a connection to host may be opened at now, consuming a
// token from both limits when it may.
func (l *Limiter) AllowAt(host string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	hostLimiter := l.hostLimiter(host)
	if hostLimiter != nil && hostLimiter.TokensAt(now) < 1 {
		l.denied++
		return false
	}
	if !l.limiter.AllowN(now, 1) {
		l.denied++
		return false
	}
	if hostLimiter != nil {
		hostLimiter.AllowN(now, 1)
	}
	return true
}

// Delay returns how long until the next global token is available.
func (l *Limiter) Delay(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.defaultRate == rate.Inf {
		return 0
	}
	tokens := l.limiter.TokensAt(now)
	if tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tokens) / float64(l.defaultRate) * float64(time.Second))
}

func (l *Limiter) hostLimiter(host string) *rate.Limiter {
	if l.hostRate == rate.Inf {
		return nil
	}
	hl, ok := l.perHost[host]
	if !ok {
		hl = rate.NewLimiter(l.hostRate, l.hostBurst)
		l.perHost[host] = hl
	}
	return hl
}

// Stats returns rate limiter statistics.
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := LimiterStats{
		HostCount: len(l.perHost),
		Burst:     l.limiter.Burst(),
		Denied:    l.denied,
	}
	if l.defaultRate != rate.Inf {
		stats.Rate = float64(l.defaultRate)
	}
	return stats
}

// LimiterStats contains rate limiter statistics.
type LimiterStats struct {
	HostCount int     `json:"host_count"`
	Rate      float64 `json:"rate"`
	Burst     int     `json:"burst"`
	Denied    int64   `json:"denied"`
}
