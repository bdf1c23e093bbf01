// Package shutdown turns termination signals into an orderly mirror stop.
//
// The first signal runs the registered steps, newest first, under a single
// deadline. A signal arriving while the steps still run is handed to
// OnForce, which normally exits the process.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Step is one stage of a shutdown. It should return once ctx is done.
type Step func(ctx context.Context) error

// StepError reports a step that failed or outlived the shutdown deadline.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("shutdown step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Config holds shutdown configuration.
type Config struct {
	// Deadline shared by all steps
	Timeout time.Duration

	// Signals that start a shutdown
	Signals []os.Signal

	// Called once when shutdown begins; sig is nil for Shutdown calls
	OnSignal func(sig os.Signal)

	// Called for a signal received while steps are still running
	OnForce func(sig os.Signal)

	// Called after the last step with the joined step errors
	OnDone func(elapsed time.Duration, err error)
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

type namedStep struct {
	name string
	run  Step
}

// Handler runs shutdown steps on the first termination signal.
type Handler struct {
	cfg Config

	mu    sync.Mutex
	steps []namedStep

	signals  chan os.Signal
	stopping atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	done chan struct{}
	err  error // written before done closes
}

// New creates a handler and starts receiving cfg.Signals.
func New(cfg Config) *Handler {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = defaults.Signals
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		cfg:     cfg,
		signals: make(chan os.Signal, 2),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	signal.Notify(h.signals, cfg.Signals...)
	return h
}

// Register adds a named step.
func (h *Handler) Register(name string, step Step) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.steps = append(h.steps, namedStep{name: name, run: step})
}

// RegisterFunc adds a step that cannot fail.
func (h *Handler) RegisterFunc(name string, fn func()) {
	h.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// Context returns a context cancelled when shutdown begins.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// IsShuttingDown reports whether shutdown has begun.
func (h *Handler) IsShuttingDown() bool {
	return h.stopping.Load()
}

// Done is closed after the last step has run.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Err returns the joined step errors. Valid once Done is closed.
func (h *Handler) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// WaitWithContext blocks until a signal arrives or ctx is cancelled. A signal
// runs the steps and returns their joined errors; cancellation of ctx only
// stops listening.
func (h *Handler) WaitWithContext(ctx context.Context) error {
	select {
	case sig := <-h.signals:
		return h.run(sig)
	case <-ctx.Done():
		return nil
	case <-h.ctx.Done():
		<-h.done
		return h.err
	}
}

// Shutdown runs the steps once, newest first. Later calls wait for the
// first to finish and return its result.
func (h *Handler) Shutdown() error {
	return h.run(nil)
}

func (h *Handler) run(sig os.Signal) error {
	if !h.stopping.CompareAndSwap(false, true) {
		<-h.done
		return h.err
	}

	start := time.Now()
	if h.cfg.OnSignal != nil {
		h.cfg.OnSignal(sig)
	}
	h.cancel()

	stopWatch := make(chan struct{})
	go h.watchForce(stopWatch)

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.Timeout)
	defer cancel()

	h.mu.Lock()
	steps := append([]namedStep(nil), h.steps...)
	h.mu.Unlock()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		if err := runStep(ctx, steps[i]); err != nil {
			errs = append(errs, err)
		}
	}
	close(stopWatch)

	h.err = errors.Join(errs...)
	if h.cfg.OnDone != nil {
		h.cfg.OnDone(time.Since(start), h.err)
	}
	close(h.done)
	return h.err
}

func (h *Handler) watchForce(stop <-chan struct{}) {
	select {
	case sig := <-h.signals:
		if h.cfg.OnForce != nil {
			h.cfg.OnForce(sig)
		}
	case <-stop:
	}
}

func runStep(ctx context.Context, s namedStep) error {
	result := make(chan error, 1)
	go func() {
		result <- s.run(ctx)
	}()

	select {
	case err := <-result:
		if err != nil {
			return &StepError{Step: s.name, Err: err}
		}
		return nil
	case <-ctx.Done():
		return &StepError{Step: s.name, Err: ctx.Err()}
	}
}

// Close stops signal delivery to the handler.
func (h *Handler) Close() {
	signal.Stop(h.signals)
}
