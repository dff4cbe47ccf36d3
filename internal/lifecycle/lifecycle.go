// Package lifecycle sequences the daemon's graceful shutdown: stop
// accepting new RPC connections, stop every tracked subscription's watcher
// and await its in-flight indexing job's cooperative cancellation, then
// release the graph store's connection pool, in that order.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Closer is one shutdown step. It is given a context bounded by the
// Coordinator's grace period.
type Closer func(ctx context.Context) error

// Coordinator runs a named sequence of Closers in order on shutdown,
// bounding the whole sequence by GracePeriod.
type Coordinator struct {
	GracePeriod time.Duration

	steps []namedCloser
}

type namedCloser struct {
	name string
	fn   Closer
}

// New creates a Coordinator with the given grace period. A zero or negative
// period falls back to 10s, matching daemon.Config's ShutdownGracePeriod
// default.
func New(gracePeriod time.Duration) *Coordinator {
	if gracePeriod <= 0 {
		gracePeriod = 10 * time.Second
	}
	return &Coordinator{GracePeriod: gracePeriod}
}

// Register appends a shutdown step. Steps run in the order registered, so
// register in dependency order: stop accepting new work before tearing down
// the things that work depends on.
func (c *Coordinator) Register(name string, fn Closer) {
	c.steps = append(c.steps, namedCloser{name: name, fn: fn})
}

// NotifyContext returns a context cancelled on SIGINT or SIGTERM, along with
// its stop function.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Shutdown runs every registered step in order, bounding the whole sequence
// by GracePeriod. A step that errors or times out does not stop later
// steps from running; all errors are joined and returned.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.GracePeriod)
	defer cancel()

	var errs []error
	for _, step := range c.steps {
		slog.Info("shutdown: running step", slog.String("step", step.name))
		start := time.Now()

		done := make(chan error, 1)
		go func(fn Closer) { done <- fn(ctx) }(step.fn)

		select {
		case err := <-done:
			if err != nil {
				slog.Error("shutdown: step failed", slog.String("step", step.name), slog.String("error", err.Error()))
				errs = append(errs, errors.New(step.name+": "+err.Error()))
			} else {
				slog.Info("shutdown: step complete", slog.String("step", step.name), slog.Duration("elapsed", time.Since(start)))
			}
		case <-ctx.Done():
			slog.Error("shutdown: step timed out", slog.String("step", step.name))
			errs = append(errs, errors.New(step.name+": "+ctx.Err().Error()))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
