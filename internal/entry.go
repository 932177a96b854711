// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mdblog/internal/api"
	"github.com/starford/mdblog/internal/catalog"
	"github.com/starford/mdblog/internal/mcpserver"
	"github.com/starford/mdblog/internal/parser"
	"github.com/starford/mdblog/internal/sse"
	"github.com/starford/mdblog/internal/storage"
	"github.com/starford/mdblog/internal/store"
	"github.com/starford/mdblog/internal/syncer"
)

// components is the wired object graph shared by every command.
type components struct {
	cfg      *Config
	logger   *slog.Logger
	articles *storage.FS
	db       *store.DB
	catalog  *catalog.Service
	engine   *syncer.Engine
	broker   *sse.Broker
}

func (c *components) Close() {
	if c.broker != nil {
		c.broker.Close()
	}
	if err := c.db.Close(); err != nil {
		c.logger.Warn("close store", slog.String("error", err.Error()))
	}
}

// setup applies opts and builds the logger, storage, store, read service
// and sync engine.
func setup(opts []Option) (*components, error) {
	app := &application{logOutput: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("articles_path", cfg.Articles.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Int("sync_workers", cfg.Sync.Workers),
		slog.Bool("sync_watch", cfg.Sync.Watch),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// The articles root is never created here; NewFS fails when it is missing.
	articles, err := storage.NewFS(cfg.Articles.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	cat := catalog.NewService(db, catalog.NewCategoryCache(cfg.Catalog.CacheTTL))

	c := &components{
		cfg:      cfg,
		logger:   logger,
		articles: articles,
		db:       db,
		catalog:  cat,
	}
	c.engine = syncer.New(articles, db,
		syncer.WithLogger(logger),
		syncer.WithWorkers(cfg.Sync.Workers),
		syncer.WithParser(parser.New(cfg.Render.AssetPrefix)),
		syncer.WithAfterSync(func(*syncer.Report) { cat.Invalidate() }),
		syncer.WithEventCallback(func(kind, key string) {
			if c.broker != nil {
				c.broker.PublishArticleEvent(kind, key)
			}
		}),
	)
	return c, nil
}

// initialSync runs the startup reconciliation. Its error is fatal.
func (c *components) initialSync(ctx context.Context) error {
	report, err := c.engine.Sync(ctx)
	if err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}
	if len(report.Failures) > 0 {
		c.logger.Warn("initial sync finished with failures",
			slog.String("run_id", report.RunID),
			slog.Int("failed", len(report.Failures)))
	}
	return nil
}

// Run starts the HTTP server with the given options. The store is synced
// before the server accepts requests.
func Run(ctx context.Context, opts ...Option) error {
	c, err := setup(opts)
	if err != nil {
		return err
	}
	defer c.Close()

	cfg, logger := c.cfg, c.logger

	// SSE broker.
	c.broker = sse.NewBroker(sse.DefaultCatalogThrottle)

	if err := c.initialSync(ctx); err != nil {
		logger.Error("Initial sync failed", slog.String("error", err.Error()))
		return err
	}

	apiRouter := api.NewRouter(c.catalog, c.engine, c.articles, cfg.Auth.AuthEnabled(), cfg.Auth.Token, c.broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Re-sync on changes under the articles directory.
	if cfg.Sync.Watch {
		g.Go(func() error {
			if err := syncer.Watch(gCtx, c.engine, c.articles.Root(), cfg.Sync.Debounce, logger); err != nil {
				logger.Error("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

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

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Close the broker first so open SSE streams end and Shutdown can drain.
		c.broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the errgroup context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunSync performs one reconciliation and exits. Per-article failures are
// logged; only fatal sync errors are returned.
func RunSync(ctx context.Context, opts ...Option) error {
	c, err := setup(opts)
	if err != nil {
		return err
	}
	defer c.Close()

	report, err := c.engine.Sync(ctx)
	if err != nil {
		return err
	}
	for _, f := range report.Failures {
		c.logger.Warn("article not synced", slog.String("error", f.Error()))
	}
	c.logger.Info("Sync complete",
		slog.String("run_id", report.RunID),
		slog.Int("removed", len(report.Removed)),
		slog.Int("saved", len(report.Saved)),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("failed", len(report.Failures)))
	return nil
}

// RunMCP syncs the store and then serves MCP over stdio until stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	c, err := setup(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.initialSync(ctx); err != nil {
		return err
	}

	c.logger.Info("Serving MCP over stdio")
	return mcpserver.New(c.catalog, c.articles, c.engine).ServeStdio()
}
