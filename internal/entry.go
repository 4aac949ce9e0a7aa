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

	"github.com/starford/quire/internal/api"
	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/mcpserver"
	"github.com/starford/quire/internal/noteservice"
	"github.com/starford/quire/internal/records"
	"github.com/starford/quire/internal/sse"
	"github.com/starford/quire/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// In MCP mode stdout carries the protocol, so logs go to stderr.
	var logOut io.Writer = os.Stdout
	if cfg.App.Mode == ModeMCP {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("mode", cfg.App.Mode),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("content_dir", cfg.Store.ContentDir),
		slog.String("default_representation", cfg.Store.DefaultRepresentation),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Store.ContentDir, 0o755); err != nil {
		return fmt.Errorf("create content dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Store.ContentDir)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	db, err := records.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init records: %w", err)
	}
	defer db.Close()

	ix := index.New()

	var broker *sse.Broker
	svcOpts := []noteservice.Option{
		noteservice.WithDefaultRepresentation(cfg.Store.Representation()),
		noteservice.WithExcerptLength(cfg.Store.ExcerptLength),
	}
	if cfg.App.Mode == ModeHTTP {
		broker = sse.NewBroker(2 * time.Second)
		defer broker.Close()
		svcOpts = append(svcOpts, noteservice.WithNotifier(broker))
	}

	svc := noteservice.New(db, store, ix, logger, svcOpts...)
	if err := svc.Load(ctx); err != nil {
		return fmt.Errorf("load notes: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watcher.Enabled {
		var onChange index.EventCallback
		if broker != nil {
			onChange = broker.NoteChanged
		}
		g.Go(func() error {
			if err := index.Watch(gCtx, ix, store, cfg.Watcher.Debounce, logger, svc.ReindexNote, onChange); err != nil {
				logger.Warn("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	switch cfg.App.Mode {
	case ModeMCP:
		runMCP(g, svc, app.version, logger)
	default:
		runHTTP(gCtx, g, cfg, svc, broker, logger)
	}

	// Flush queued saves once every front end has stopped.
	g.Go(func() error {
		<-gCtx.Done()
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Close(closeCtx); err != nil {
			logger.Error("pending saves not flushed", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errStopped) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Stopped successfully")
	return nil
}

// errStopped ends the errgroup on a clean shutdown request.
var errStopped = errors.New("stopped")

func runHTTP(ctx context.Context, g *errgroup.Group, cfg *Config, svc *noteservice.Service, broker *sse.Broker, logger *slog.Logger) {
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		var err error
		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			err = errStopped
		case <-ctx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", serr.Error()))
		}
		return err
	})
}

func runMCP(g *errgroup.Group, svc *noteservice.Service, version string, logger *slog.Logger) {
	srv := mcpserver.New(svc, version)
	g.Go(func() error {
		logger.Info("Serving MCP over stdio")
		if err := srv.ServeStdio(); err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		// stdin closed: the client is gone.
		return errStopped
	})
}
