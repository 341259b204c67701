// Package gitsync periodically commits and pushes the content root to a git
// remote, reconciling rejected pushes with a configurable strategy.
package gitsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Strategy selects how a rejected push is reconciled.
type Strategy string

const (
	StrategyRebase Strategy = "rebase"
	StrategyMerge  Strategy = "merge"
	StrategyBranch Strategy = "branch"
)

// DefaultCommitMessage is used when no template is configured.
const DefaultCommitMessage = "Auto-commit: {timestamp}"

// Operation labels reported in Status.CurrentOperation.
const (
	OpChecking   = "checking for changes"
	OpCommitting = "committing changes"
	OpPushing    = "pushing changes"
	OpResolving  = "resolving conflict"
)

// Config controls the sync loop.
type Config struct {
	Enabled               bool
	Interval              time.Duration
	AutoCommit            bool
	AutoPush              bool
	CommitMessageTemplate string // "{timestamp}" is replaced with the sync time
	ConflictStrategy      Strategy
}

// Status is a snapshot of the manager's bookkeeping.
type Status struct {
	IsRunning        bool       `json:"isRunning"`
	LastSync         *time.Time `json:"lastSync"`
	NextSync         *time.Time `json:"nextSync"`
	CurrentOperation string     `json:"currentOperation,omitempty"`
	ErrorCount       int        `json:"errorCount"`
	LastError        string     `json:"lastError,omitempty"`
}

// Info combines repository state with sync bookkeeping for health reporting.
type Info struct {
	Enabled    bool       `json:"enabled"`
	Branch     string     `json:"branch,omitempty"`
	LastCommit string     `json:"lastCommit,omitempty"`
	UpToDate   bool       `json:"upToDate"`
	LastSync   *time.Time `json:"lastSync"`
	Errors     []string   `json:"errors,omitempty"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the sync schedule and the single in-flight repository operation.
type Manager struct {
	repo   Repository
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	flight singleflight.Group

	lifeMu   sync.Mutex
	stopCh   chan struct{}
	loopDone chan struct{}

	mu      sync.Mutex
	pending chan struct{} // non-nil while an operation holds the repository
	status  Status
}

// NewManager creates a stopped manager.
func NewManager(repo Repository, cfg Config, opts ...Option) *Manager {
	if cfg.ConflictStrategy == "" {
		cfg.ConflictStrategy = StrategyRebase
	}
	m := &Manager{
		repo:   repo,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enabled reports whether git sync is configured on.
func (m *Manager) Enabled() bool { return m.cfg.Enabled }

// Start arms the periodic sync. Calling it again while started only logs a
// warning. Git commands run under ctx.
func (m *Manager) Start(ctx context.Context) {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if !m.cfg.Enabled {
		m.logger.Info("git sync disabled")
		return
	}
	if m.stopCh != nil {
		m.logger.Warn("git sync already started")
		return
	}
	if m.cfg.Interval <= 0 {
		m.logger.Warn("git sync interval not positive, periodic sync off")
		return
	}

	m.stopCh = make(chan struct{})
	m.loopDone = make(chan struct{})
	m.setNextSync()

	go m.loop(ctx, m.stopCh, m.loopDone)

	m.logger.Info("git sync started",
		slog.Duration("interval", m.cfg.Interval),
		slog.String("strategy", string(m.cfg.ConflictStrategy)))
}

// Stop halts the schedule and waits for an in-flight operation to finish,
// or for ctx to expire.
func (m *Manager) Stop(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.stopCh != nil {
		close(m.stopCh)
		select {
		case <-m.loopDone:
		case <-ctx.Done():
			return fmt.Errorf("gitsync: stop: %w", ctx.Err())
		}
		m.stopCh, m.loopDone = nil, nil
	}

	m.mu.Lock()
	p := m.pending
	m.status.NextSync = nil
	m.mu.Unlock()
	if p != nil {
		select {
		case <-p:
		case <-ctx.Done():
			return fmt.Errorf("gitsync: stop: %w", ctx.Err())
		}
	}
	m.logger.Info("git sync stopped")
	return nil
}

func (m *Manager) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Errors are recorded in Status; the schedule keeps running.
			_ = m.performSync(ctx)
			m.setNextSync()
		}
	}
}

// ForceSync runs a sync now. Concurrent calls share one execution and its
// result. It returns ErrSyncInProgress if a scheduled sync holds the repository.
// The shared run is detached from ctx so one caller leaving cannot kill git
// mid-commit; ctx only bounds how long this caller waits.
func (m *Manager) ForceSync(ctx context.Context) error {
	runCtx := context.WithoutCancel(ctx)
	ch := m.flight.DoChan("sync", func() (any, error) {
		return nil, m.performSync(runCtx)
	})
	select {
	case res := <-ch:
		if res.Shared {
			m.logger.Debug("forced sync joined an in-flight request")
		}
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("gitsync: force sync: %w", ctx.Err())
	}
}

// HandleConflict reconciles the local branch with the remote using strategy.
func (m *Manager) HandleConflict(ctx context.Context, strategy Strategy) error {
	done, err := m.begin()
	if err != nil {
		return err
	}
	defer done()
	return m.resolve(ctx, strategy)
}

// CommitPendingChanges commits whatever is in the working tree. It does not
// push, so a slow remote cannot hold up shutdown. It never fails; it reports
// whether a commit was made.
func (m *Manager) CommitPendingChanges(ctx context.Context, msg string) bool {
	if !m.cfg.Enabled {
		return false
	}
	done, err := m.begin()
	if err != nil {
		m.logger.Warn("skipping pending commit", slog.String("error", err.Error()))
		return false
	}
	defer done()

	has, err := m.repo.HasChanges(ctx)
	if err != nil {
		m.logger.Warn("pending commit: status failed", slog.String("error", err.Error()))
		return false
	}
	if !has {
		return false
	}
	if err := m.repo.CommitAll(ctx, msg); err != nil {
		m.logger.Warn("pending commit failed", slog.String("error", err.Error()))
		return false
	}
	m.logger.Info("committed pending changes", slog.String("message", msg))
	return true
}

// Status returns a copy of the current bookkeeping.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.status
	s.LastSync = copyTime(s.LastSync)
	s.NextSync = copyTime(s.NextSync)
	return s
}

// Info reports repository state for health checks.
func (m *Manager) Info(ctx context.Context) Info {
	st := m.Status()
	info := Info{Enabled: m.cfg.Enabled, LastSync: st.LastSync}
	if st.LastError != "" {
		info.Errors = append(info.Errors, st.LastError)
	}
	if !m.cfg.Enabled {
		return info
	}
	ri, err := m.repo.Info(ctx)
	if err != nil {
		info.Errors = append(info.Errors, err.Error())
		return info
	}
	info.Branch = ri.Branch
	info.LastCommit = ri.LastCommit
	info.UpToDate = ri.Clean && ri.Ahead == 0 && ri.Behind == 0
	return info
}

// Reset clears the bookkeeping. Intended for tests.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = Status{}
}

func (m *Manager) performSync(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}
	done, err := m.begin()
	if err != nil {
		m.logger.Warn("sync skipped", slog.String("reason", err.Error()))
		return err
	}
	defer done()

	start := m.now()
	err = m.sync(ctx)

	m.mu.Lock()
	if err != nil {
		m.status.ErrorCount++
		m.status.LastError = err.Error()
	} else {
		t := m.now()
		m.status.LastSync = &t
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("sync failed", slog.String("error", err.Error()))
		return err
	}
	m.logger.Debug("sync finished", slog.Duration("took", m.now().Sub(start)))
	return nil
}

func (m *Manager) sync(ctx context.Context) error {
	m.setOperation(OpChecking)
	has, err := m.repo.HasChanges(ctx)
	if err != nil {
		return fmt.Errorf("check changes: %w", err)
	}
	if !has {
		return nil
	}
	if !m.cfg.AutoCommit {
		m.logger.Debug("changes pending, auto-commit off")
		return nil
	}

	m.setOperation(OpCommitting)
	msg := m.commitMessage()
	if err := m.repo.CommitAll(ctx, msg); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	m.logger.Info("committed changes", slog.String("message", msg))

	if !m.cfg.AutoPush {
		return nil
	}
	m.setOperation(OpPushing)
	err = m.repo.Push(ctx)
	if errors.Is(err, ErrPushRejected) {
		m.logger.Warn("push rejected, resolving", slog.String("strategy", string(m.cfg.ConflictStrategy)))
		return m.resolve(ctx, m.cfg.ConflictStrategy)
	}
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

// resolve runs a conflict strategy. The caller holds the repository.
func (m *Manager) resolve(ctx context.Context, strategy Strategy) error {
	m.setOperation(OpResolving)
	switch strategy {
	case StrategyRebase, StrategyMerge:
		if err := m.repo.Pull(ctx, strategy == StrategyRebase); err != nil {
			return fmt.Errorf("%s: pull: %w", strategy, err)
		}
		if err := m.repo.Push(ctx); err != nil {
			return fmt.Errorf("%s: push: %w", strategy, err)
		}
	case StrategyBranch:
		name := m.conflictBranch()
		if err := m.repo.CreateBranch(ctx, name); err != nil {
			return fmt.Errorf("branch: create %s: %w", name, err)
		}
		if err := m.repo.PushBranch(ctx, name); err != nil {
			return fmt.Errorf("branch: push %s: %w", name, err)
		}
		m.logger.Warn("local changes moved to conflict branch", slog.String("branch", name))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	return nil
}

// begin claims the repository for one operation.
func (m *Manager) begin() (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		return nil, ErrSyncInProgress
	}
	p := make(chan struct{})
	m.pending = p
	m.status.IsRunning = true
	return func() {
		m.mu.Lock()
		m.pending = nil
		m.status.IsRunning = false
		m.status.CurrentOperation = ""
		m.mu.Unlock()
		close(p)
	}, nil
}

func (m *Manager) setOperation(op string) {
	m.mu.Lock()
	m.status.CurrentOperation = op
	m.mu.Unlock()
}

func (m *Manager) setNextSync() {
	t := m.now().Add(m.cfg.Interval)
	m.mu.Lock()
	m.status.NextSync = &t
	m.mu.Unlock()
}

func (m *Manager) commitMessage() string {
	ts := m.now().UTC().Format(time.RFC3339)
	tpl := m.cfg.CommitMessageTemplate
	if tpl == "" {
		tpl = DefaultCommitMessage
	}
	return strings.ReplaceAll(tpl, "{timestamp}", ts)
}

func (m *Manager) conflictBranch() string {
	return fmt.Sprintf("conflict-%d-%s", m.now().UnixMilli(), uuid.NewString()[:8])
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
