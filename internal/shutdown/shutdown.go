// Package shutdown tears the application down in a fixed order, at most once,
// within a bounded time.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// DefaultTimeout bounds the whole teardown.
const DefaultTimeout = 30 * time.Second

// PendingCommitMessage is used for the final commit of unsynced changes.
const PendingCommitMessage = "Shutdown: pending changes"

// ErrInProgress is returned by a second Shutdown call.
var ErrInProgress = errors.New("shutdown already in progress")

// Stopper is anything that can be stopped under a deadline.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Syncer is the part of the git sync manager the orchestrator drives.
type Syncer interface {
	Stopper
	Enabled() bool
	CommitPendingChanges(ctx context.Context, msg string) bool
}

// Step is an extra teardown action run before or after the core sequence.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout sets the watchdog deadline. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithExit replaces os.Exit for the watchdog.
func WithExit(exit func(code int)) Option {
	return func(o *Orchestrator) { o.exit = exit }
}

// WithWatcher sets the filesystem watcher stopped first in the core sequence.
func WithWatcher(w Stopper) Option {
	return func(o *Orchestrator) { o.watcher = w }
}

// WithSyncer sets the git sync manager to stop and flush pending changes.
func WithSyncer(s Syncer) Option {
	return func(o *Orchestrator) { o.syncer = s }
}

// Before adds a step that runs ahead of stopping the watcher, such as
// draining the HTTP server so no new writes arrive.
func Before(s Step) Option {
	return func(o *Orchestrator) { o.before = append(o.before, s) }
}

// After adds a step that runs once pending changes are committed.
func After(s Step) Option {
	return func(o *Orchestrator) { o.after = append(o.after, s) }
}

// Orchestrator runs the shutdown sequence:
// before steps, watcher stop, sync manager stop, pending commit, after steps.
type Orchestrator struct {
	timeout time.Duration
	logger  *slog.Logger
	exit    func(int)
	watcher Stopper
	syncer  Syncer
	before  []Step
	after   []Step

	started atomic.Bool
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		exit:    os.Exit,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// InProgress reports whether Shutdown has been called.
func (o *Orchestrator) InProgress() bool {
	return o.started.Load()
}

// Shutdown runs the sequence once. A failing step is logged and the rest
// still run; all failures are returned joined. If the sequence outlives the
// timeout the process is terminated with status 1.
func (o *Orchestrator) Shutdown(ctx context.Context, reason string) error {
	if !o.started.CompareAndSwap(false, true) {
		o.logger.Warn("shutdown already in progress", slog.String("reason", reason))
		return ErrInProgress
	}
	o.logger.Info("shutting down", slog.String("reason", reason), slog.Duration("timeout", o.timeout))

	watchdog := time.AfterFunc(o.timeout, func() {
		o.logger.Error("shutdown timed out, forcing exit", slog.Duration("timeout", o.timeout))
		o.exit(1)
	})
	defer watchdog.Stop()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var errs []error
	run := func(s Step) {
		start := time.Now()
		if err := s.Run(ctx); err != nil {
			o.logger.Error("shutdown step failed", slog.String("step", s.Name), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			return
		}
		o.logger.Debug("shutdown step done", slog.String("step", s.Name), slog.Duration("took", time.Since(start)))
	}

	for _, s := range o.steps() {
		run(s)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	o.logger.Info("shutdown complete")
	return nil
}

func (o *Orchestrator) steps() []Step {
	steps := append([]Step(nil), o.before...)
	if o.watcher != nil {
		steps = append(steps, Step{Name: "stop watcher", Run: o.watcher.Stop})
	}
	if o.syncer != nil {
		steps = append(steps, Step{Name: "stop git sync", Run: o.syncer.Stop})
		if o.syncer.Enabled() {
			steps = append(steps, Step{Name: "commit pending changes", Run: func(ctx context.Context) error {
				if o.syncer.CommitPendingChanges(ctx, PendingCommitMessage) {
					o.logger.Info("pending changes committed")
				}
				return nil
			}})
		}
	}
	return append(steps, o.after...)
}
