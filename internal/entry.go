// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/sickfar/mdumb/internal/api"
	"github.com/sickfar/mdumb/internal/docservice"
	"github.com/sickfar/mdumb/internal/events"
	"github.com/sickfar/mdumb/internal/gitsync"
	"github.com/sickfar/mdumb/internal/ignore"
	"github.com/sickfar/mdumb/internal/index"
	"github.com/sickfar/mdumb/internal/mcpserver"
	"github.com/sickfar/mdumb/internal/shutdown"
	"github.com/sickfar/mdumb/internal/sse"
	"github.com/sickfar/mdumb/internal/storage"
	"github.com/sickfar/mdumb/internal/watcher"
)

var errConfigRequired = errors.New("config is required")

// core is the content engine shared by every run mode.
type core struct {
	logger  *slog.Logger
	store   *storage.FS
	db      *index.DB
	matcher *ignore.Matcher
	bus     *events.Bus
	watcher *watcher.Watcher
	sync    *gitsync.Manager
	docs    *docservice.Service
}

// openCore opens storage and the catalog, performs the initial index sync
// and wires the catalog to the event bus. The watcher is created but not
// started.
func openCore(cfg *Config, logger *slog.Logger) (*core, error) {
	if err := os.MkdirAll(cfg.Content.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Content.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	matcher := ignore.New(logger)
	bus := events.NewBus(logger)
	ix := index.NewIndexer(db, store, matcher, logger)
	if err := ix.Sync(); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	bus.On(events.All, ix.Handle)

	c := &core{
		logger:  logger,
		store:   store,
		db:      db,
		matcher: matcher,
		bus:     bus,
		watcher: watcher.New(bus, watcher.WithDebounce(cfg.Watch.Debounce()), watcher.WithLogger(logger)),
		sync: gitsync.NewManager(
			gitsync.NewGit(store.Root(), cfg.Git.Remote),
			cfg.Git.SyncConfig(),
			gitsync.WithLogger(logger),
		),
		docs: docservice.New(store, db, ix, bus, logger),
	}
	return c, nil
}

func (c *core) startWatcher(cfg *Config) {
	if !cfg.Watch.Enabled {
		c.logger.Info("watcher disabled")
		return
	}
	// A failed watch degrades to API-only updates.
	if err := c.watcher.Start(c.store.Root()); err != nil {
		c.logger.Error("watcher start failed", slog.String("error", err.Error()))
	}
}

func setupLogger(cfg *Config, out *os.File) (*slog.Logger, io.Closer) {
	logger, closer := newLogger(cfg.App, out)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("content_path", cfg.Content.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("git_enabled", cfg.Git.Enabled),
		slog.Bool("watch_enabled", cfg.Watch.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))
	return logger, closer
}

// Run starts the HTTP server with watcher, git sync and event stream, and
// blocks until a signal or a fatal server error.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, logCloser := setupLogger(cfg, os.Stdout)
	defer logCloser.Close()

	lock, err := acquireLock(cfg.Content.Path)
	if err != nil {
		return err
	}

	c, err := openCore(cfg, logger)
	if err != nil {
		_ = lock.Release()
		return err
	}

	broker := sse.NewBroker(sse.DefaultPingInterval, logger)
	broker.Attach(c.bus)

	c.startWatcher(cfg)
	// Git commands must not be killed mid-sync by the signal; Stop waits for them.
	c.sync.Start(context.WithoutCancel(ctx))

	apiRouter := api.NewRouter(api.Deps{
		Docs:        c.docs,
		Sync:        c.sync,
		Watcher:     c.watcher,
		Ignore:      c.matcher,
		Root:        c.store.Root(),
		Events:      broker,
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	orchestrator := shutdown.New(
		shutdown.WithTimeout(cfg.Shutdown.Timeout()),
		shutdown.WithLogger(logger),
		// Open event streams would hold the HTTP drain until the deadline.
		shutdown.Before(shutdown.Step{Name: "close event stream", Run: func(context.Context) error {
			broker.Close()
			return nil
		}}),
		shutdown.Before(shutdown.Step{Name: "stop http server", Run: httpServer.Shutdown}),
		shutdown.WithWatcher(c.watcher),
		shutdown.WithSyncer(c.sync),
		shutdown.After(shutdown.Step{Name: "close index", Run: func(context.Context) error {
			return c.db.Close()
		}}),
		shutdown.After(shutdown.Step{Name: "release lock", Run: func(context.Context) error {
			return lock.Release()
		}}),
	)

	logger.Info("Server starting...",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("title", cfg.App.Title),
		slog.String("version", app.version))

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		reason := "context cancelled"
		select {
		case sig := <-quit:
			reason = sig.String()
			logger.Info("Received shutdown signal", slog.String("signal", reason))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		return orchestrator.Shutdown(context.Background(), reason)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr. The
// watcher keeps the catalog fresh while the session lasts; git sync is
// reported but not scheduled.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, logCloser := setupLogger(cfg, os.Stderr)
	defer logCloser.Close()

	c, err := openCore(cfg, logger)
	if err != nil {
		return err
	}
	defer c.db.Close()

	c.startWatcher(cfg)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Shutdown.Timeout())
		defer cancel()
		if err := c.watcher.Stop(stopCtx); err != nil {
			logger.Warn("watcher stop failed", slog.String("error", err.Error()))
		}
	}()

	var reporter mcpserver.SyncReporter
	if c.sync.Enabled() {
		reporter = c.sync
	}
	srv := mcpserver.New(c.docs, reporter, app.version)
	logger.Info("MCP server starting on stdio", slog.String("version", app.version))
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

// RunSync performs one git sync of the content root and exits. It refuses
// to run while a server holds the root.
func RunSync(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, logCloser := setupLogger(cfg, os.Stdout)
	defer logCloser.Close()

	if !cfg.Git.Enabled {
		return fmt.Errorf("git sync is disabled (set git.enabled or GIT_ENABLED=true)")
	}

	lock, err := acquireLock(cfg.Content.Path)
	if err != nil {
		return fmt.Errorf("%w; use POST /api/sync on the running server", err)
	}
	defer lock.Release()

	store, err := storage.NewFS(cfg.Content.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	mgr := gitsync.NewManager(
		gitsync.NewGit(store.Root(), cfg.Git.Remote),
		cfg.Git.SyncConfig(),
		gitsync.WithLogger(logger),
	)
	if err := mgr.ForceSync(ctx); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	info := mgr.Info(ctx)
	logger.Info("sync complete",
		slog.String("branch", info.Branch),
		slog.String("last_commit", info.LastCommit),
		slog.Bool("up_to_date", info.UpToDate))
	return nil
}
