package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	cerrors "github.com/PentesterFlow/OpenMirror/internal/errors"
	rawhttp "github.com/PentesterFlow/OpenMirror/internal/http"
	"github.com/PentesterFlow/OpenMirror/internal/logger"
	"github.com/PentesterFlow/OpenMirror/internal/metrics"
	"github.com/PentesterFlow/OpenMirror/internal/netpoll"
	"github.com/PentesterFlow/OpenMirror/internal/parser"
	"github.com/PentesterFlow/OpenMirror/internal/queue"
	"github.com/PentesterFlow/OpenMirror/internal/ratelimit"
	"github.com/PentesterFlow/OpenMirror/internal/scope"
	"github.com/PentesterFlow/OpenMirror/internal/state"
)

const (
	defaultPollInterval = 200 * time.Millisecond
	seenSetEstimate     = 100000
)

// Engine mirrors a site over many non-blocking connections driven by one
// I/O goroutine. An Engine runs one crawl at a time and can be restarted
// once the previous run has finished.
type Engine struct {
	listener  Listener
	log       *logger.Logger
	metrics   *metrics.Collector
	now       func() time.Time
	dialer    Dialer
	newPoller func() (netpoll.Poller, error)

	frontier *queue.Frontier
	seen     *state.SeenSet

	running       atomic.Bool
	stopRequested atomic.Bool

	mu      sync.Mutex
	done    chan struct{}
	summary Summary
	cancel  context.CancelFunc

	// Run state, owned by the I/O goroutine once Start returns.
	cfg       *Config
	scope     *scope.Checker
	limiter   *ratelimit.Limiter
	manifest  *state.Manifest
	poller    netpoll.Poller
	conns     map[int]*connCtx
	ctx       context.Context
	startedAt time.Time
}

// New creates an engine reporting to listener. A nil listener is replaced by
// NopListener.
func New(listener Listener, opts ...Option) *Engine {
	if listener == nil {
		listener = NopListener{}
	}

	done := make(chan struct{})
	close(done)

	e := &Engine{
		listener:  listener,
		log:       logger.Nop(),
		metrics:   metrics.New(),
		now:       time.Now,
		dialer:    &netpoll.Dialer{},
		newPoller: func() (netpoll.Poller, error) { return netpoll.NewPoller(), nil },
		frontier:  queue.NewFrontier(),
		seen:      state.NewSeenSet(seenSetEstimate),
		done:      done,
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start validates cfg and launches the I/O goroutine. It returns
// immediately. A rejected configuration is reported to the listener and
// returned as a config *errors.CrawlError; no run starts and OnFinished is
// not called.
func (e *Engine) Start(cfg *Config) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	if err := e.prepare(cfg); err != nil {
		e.running.Store(false)
		return err
	}

	done := make(chan struct{})
	e.mu.Lock()
	e.done = done
	e.summary = Summary{}
	e.mu.Unlock()

	go e.loop(done)
	return nil
}

// prepare resets the engine for a run of cfg and enqueues the start URL.
func (e *Engine) prepare(cfg *Config) error {
	if cfg == nil {
		return e.reject("", "missing configuration", nil)
	}
	cfg = cfg.Clone()
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = rawhttp.DefaultUserAgent
	}

	if err := cfg.Validate(); err != nil {
		return e.reject(cfg.StartURL, "invalid configuration", err)
	}

	start, err := url.Parse(cfg.StartURL)
	if err != nil {
		return e.reject(cfg.StartURL, "invalid start URL", err)
	}
	if !scope.IsHTTP(start) {
		e.listener.OnLog("[WARN] Only http:// is supported by the non-blocking engine (https needs TLS).")
		e.listener.OnStatus(StatusReady)
		return cerrors.NewConfigError(cfg.StartURL, "unsupported scheme "+start.Scheme)
	}
	start = parser.Normalize(start)

	checker, err := scope.NewChecker(start, scope.Rules{
		SameHostOnly:    cfg.SameHostOnly,
		ExcludePatterns: cfg.ExcludePatterns,
	})
	if err != nil {
		return e.reject(cfg.StartURL, "invalid scope", err)
	}

	poller, err := e.newPoller()
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}

	limiter := ratelimit.NewLimiter(cfg.RateLimit, cfg.RateBurst)
	if cfg.HostRateLimit > 0 {
		limiter.SetHostRate(cfg.HostRateLimit, cfg.RateBurst)
	}

	var manifest *state.Manifest
	if cfg.ManifestPath != "" {
		manifest, err = state.OpenManifest(cfg.ManifestPath)
		if err != nil {
			e.log.WithError(err).Warn("manifest disabled")
			e.listener.OnLog("[WARN] Manifest disabled: " + err.Error())
			manifest = nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	e.cfg = cfg
	e.scope = checker
	e.limiter = limiter
	e.manifest = manifest
	e.poller = poller
	e.conns = make(map[int]*connCtx)
	e.ctx = ctx
	e.startedAt = e.now()

	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	e.metrics.Reset()
	e.frontier.Clear()
	e.seen.Reset()
	e.stopRequested.Store(false)

	e.enqueue(start, 0)
	return nil
}

// reject reports a configuration error to the listener.
func (e *Engine) reject(rawURL, message string, cause error) error {
	err := cerrors.NewCrawlError(cerrors.Config, rawURL, "start", message, cause)
	e.listener.OnLog("[ERROR] " + err.Reason())
	e.listener.OnStatus(StatusReady)
	return err
}

// Stop asks the running loop to finish. In-flight connections are closed
// without being counted as failures. Stop never blocks.
func (e *Engine) Stop() {
	e.stopRequested.Store(true)

	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run starts a crawl and blocks until it finishes. Cancelling ctx stops the
// run; the summary still covers the work done.
func (e *Engine) Run(ctx context.Context, cfg *Config) (Summary, error) {
	if err := e.Start(cfg); err != nil {
		return Summary{}, err
	}

	done := e.Done()
	select {
	case <-done:
	case <-ctx.Done():
		e.Stop()
		<-done
	}

	s := e.Wait()
	return s, s.Err
}

// Done returns a channel closed when the current (or last) run finishes.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Wait blocks until the current run finishes and returns its summary.
func (e *Engine) Wait() Summary {
	<-e.Done()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

// IsRunning reports whether a run is in progress.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Snapshot returns the current counters. Safe from any goroutine.
func (e *Engine) Snapshot() Progress {
	return Progress{
		Attempted: e.metrics.Attempted(),
		OK:        e.metrics.OK(),
		Failed:    e.metrics.Failed(),
		Queued:    e.frontier.Len(),
		InFlight:  e.metrics.InFlight(),
	}
}

// Metrics returns the engine's collector.
func (e *Engine) Metrics() *metrics.Collector {
	return e.metrics
}

// loop is the I/O goroutine.
func (e *Engine) loop(done chan struct{}) {
	e.listener.OnStatus(StatusRunning)
	e.listener.OnLog("== Starting: " + e.cfg.StartURL + " ==")
	e.log.WithURL(e.cfg.StartURL).
		WithField("max_depth", e.cfg.MaxDepth).
		WithField("max_connections", e.cfg.MaxConnections).
		Info("mirror started")

	var fatal error
	for !e.stopRequested.Load() {
		e.admit()

		if e.frontier.IsEmpty() && len(e.conns) == 0 {
			break
		}

		events, err := e.poller.Wait(e.pollTimeout())
		if err != nil {
			fatal = err
			e.listener.OnLog("[ERROR] Fatal poll error: " + err.Error())
			e.log.Errorf("poll failed: %v", err)
			break
		}

		for _, ev := range events {
			if c, ok := e.conns[ev.Fd]; ok {
				e.step(c, ev)
			}
		}

		e.sweep(e.now())
		e.listener.OnProgress(e.Snapshot())
	}

	stopped := e.stopRequested.Load()
	e.teardown()
	e.finish(done, stopped, fatal)
}

// pollTimeout bounds the readiness wait, waking early when the rate
// limiter is the only thing holding back queued jobs.
func (e *Engine) pollTimeout() time.Duration {
	timeout := e.cfg.PollInterval
	if e.frontier.IsEmpty() || len(e.conns) >= e.cfg.MaxConnections {
		return timeout
	}
	if d := e.limiter.Delay(e.now()); d > 0 && d < timeout {
		return d
	}
	return timeout
}

// admit opens connections for queued jobs up to the concurrency limit.
func (e *Engine) admit() {
	for len(e.conns) < e.cfg.MaxConnections && !e.stopRequested.Load() {
		job, err := e.frontier.Peek()
		if err != nil {
			return
		}
		if !scope.IsHTTP(job.URL) {
			e.frontier.Pop()
			continue
		}
		if !e.limiter.AllowAt(job.URL.Hostname(), e.now()) {
			return
		}
		e.frontier.Pop()
		e.open(job)
	}
}

// open dials job and registers its connection. A job whose connection
// cannot be opened is counted as attempted and failed.
func (e *Engine) open(job queue.Job) {
	e.metrics.RecordAttempt()
	rawURL := job.URL.String()
	e.log.FetchEvent(logger.DebugLevel, rawURL, job.Depth).Msg("connecting")

	// Name resolution inside Dial is synchronous and blocks the I/O
	// goroutine for its duration. The connect itself does not.
	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.Timeout)
	conn, connected, err := e.dialer.Dial(ctx, rawhttp.DialAddress(job.URL))
	cancel()
	if err != nil {
		if e.stopRequested.Load() && errors.Is(err, context.Canceled) {
			return
		}
		e.fail(job, cerrors.Categorize(err, rawURL))
		return
	}

	c := newConnCtx(job, conn, connected, e.cfg.UserAgent, e.now(), e.cfg.Timeout, e.cfg.MaxResponseSize)
	if err := e.poller.Register(c.fd, c.interest()); err != nil {
		c.close()
		e.fail(job, cerrors.NewNetworkError(rawURL, "register", err))
		return
	}
	c.registered = c.interest()

	e.conns[c.fd] = c
	e.metrics.ConnOpened()
	e.listener.OnLog("-> Connecting: " + rawURL)
}

// step advances c on ev and handles completion or failure.
func (e *Engine) step(c *connCtx, ev netpoll.Event) {
	complete, err := c.advance(ev)
	if err != nil {
		e.fail(c.job, classify(c, err))
		e.closeConn(c)
		return
	}

	if complete {
		e.handleResponse(c)
		e.closeConn(c)
		return
	}

	if want := c.interest(); want != c.registered {
		if err := e.poller.Register(c.fd, want); err != nil {
			e.fail(c.job, cerrors.NewNetworkError(c.job.URL.String(), "register", err))
			e.closeConn(c)
			return
		}
		c.registered = want
	}
}

// classify turns a state machine error into a categorized failure.
func classify(c *connCtx, err error) *cerrors.CrawlError {
	rawURL := c.job.URL.String()
	if errors.Is(err, errResponseTooLarge) {
		return cerrors.NewProtocolError(rawURL, "response too large", err)
	}
	crawlErr := cerrors.Categorize(err, rawURL)
	crawlErr.Operation = c.state.String()
	return crawlErr
}

// sweep force-closes every connection past its deadline.
func (e *Engine) sweep(now time.Time) {
	for _, c := range e.conns {
		if c.expired(now) {
			e.fail(c.job, cerrors.NewTimeoutError(c.job.URL.String(), c.state.String(), nil))
			e.closeConn(c)
		}
	}
}

// closeConn unregisters and closes c, restoring in-flight.
func (e *Engine) closeConn(c *connCtx) {
	if _, ok := e.conns[c.fd]; !ok {
		return
	}
	e.poller.Unregister(c.fd)
	c.close()
	delete(e.conns, c.fd)
	e.metrics.ConnClosed()
}

// teardown closes whatever is still open. Nothing is counted as failed.
func (e *Engine) teardown() {
	for _, c := range e.conns {
		e.closeConn(c)
	}
	e.poller.Close()

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()
}

// finish records the run and delivers the summary exactly once.
func (e *Engine) finish(done chan struct{}, stopped bool, fatal error) {
	summary := Summary{
		StartURL:   e.cfg.StartURL,
		Attempted:  e.metrics.Attempted(),
		OK:         e.metrics.OK(),
		Failed:     e.metrics.Failed(),
		OutputDir:  e.cfg.OutputDir,
		StartedAt:  e.startedAt,
		FinishedAt: e.now(),
		Stopped:    stopped,
		Err:        fatal,
	}

	if e.manifest != nil {
		_, err := e.manifest.AddRun(state.RunRecord{
			StartURL:   summary.StartURL,
			StartedAt:  summary.StartedAt,
			FinishedAt: summary.FinishedAt,
			Attempted:  summary.Attempted,
			OK:         summary.OK,
			Failed:     summary.Failed,
			OutputDir:  summary.OutputDir,
			Stopped:    summary.Stopped,
		})
		if err != nil {
			e.log.WithError(err).Warn("manifest run record")
		}
		if err := e.manifest.Close(); err != nil {
			e.log.WithError(err).Warn("manifest close")
		}
		e.manifest = nil
	}

	stats := e.metrics.Snapshot().Summary()
	stats["seen_urls"] = e.seen.Len()
	stats["seen_fp_rate"] = e.seen.FalsePositiveRate()
	e.log.StatsEvent(stats)

	e.mu.Lock()
	e.summary = summary
	e.mu.Unlock()

	e.listener.OnStatus(StatusFinished)
	e.listener.OnFinished(summary)

	e.running.Store(false)
	close(done)
}

// fail counts a per-connection failure. The crawl continues.
func (e *Engine) fail(job queue.Job, err *cerrors.CrawlError) {
	e.metrics.RecordFailure(err.Type.String())
	e.listener.OnLog(fmt.Sprintf("[FAIL] %s (%s)", job.URL, err.Reason()))
	e.log.FailureEvent(err, job.URL.String(), err.Type.String())
}

// enqueue adds u at depth when it is in scope and has not been seen. It
// reports whether a job was added.
func (e *Engine) enqueue(u *url.URL, depth int) bool {
	if u == nil {
		return false
	}
	u = parser.Normalize(u)
	if e.scope.Check(u) != scope.Accept {
		return false
	}
	if !e.seen.Add(scope.DedupKey(u)) {
		return false
	}
	return e.frontier.Push(queue.Job{URL: u, Depth: depth}) == nil
}
