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

	"github.com/starford/zotindex/internal/api"
	"github.com/starford/zotindex/internal/itemservice"
	"github.com/starford/zotindex/internal/library"
	"github.com/starford/zotindex/internal/mcpserver"
	"github.com/starford/zotindex/internal/sqlitedb"
	"github.com/starford/zotindex/internal/sse"
)

// Version is reported by the MCP server and the CLI.
const Version = "0.1.0"

// NewLogger returns a structured JSON logger on stderr. Stdout is left to
// command output and the MCP stdio transport.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// OpenLibrary opens the library described by opts.
func OpenLibrary(opts ...Option) (*library.Library, *slog.Logger, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, nil, err
	}
	lib, err := app.openLibrary()
	if err != nil {
		return nil, nil, err
	}
	return lib, app.logger, nil
}

func (a *application) openLibrary() (*library.Library, error) {
	cfg := a.config
	lc, err := cfg.LibraryConfig()
	if err != nil {
		return nil, fmt.Errorf("resolve zotero paths: %w", err)
	}

	a.logger.Debug("Configuration loaded",
		slog.String("zotero_database", lc.Source),
		slog.String("zotero_storage", lc.StorageRoot),
		slog.String("data_dir", lc.DataDir),
		slog.String("sqlite_driver", sqlitedb.DriverName),
		slog.String("sqlite_build", sqlitedb.BuildMode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	lib, err := library.Open(lc, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	return lib, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger
	slog.SetDefault(logger)

	lib, err := app.openLibrary()
	if err != nil {
		return err
	}
	defer lib.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc := itemservice.NewService(lib, lib.Attachments(), broker, logger)

	// Run initial sync.
	if _, err := svc.Sync(ctx, false); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

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
		if _, err := lib.Stats(); err != nil {
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

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the Zotero database and sync when it changes.
	if cfg.Watch.Enabled {
		g.Go(func() error {
			if err := library.Watch(gCtx, lib, cfg.Watch.Debounce, logger, svc.Notify); err != nil {
				logger.Warn("watcher unavailable", slog.String("error", err.Error()))
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	slog.SetDefault(app.logger)

	lib, err := app.openLibrary()
	if err != nil {
		return err
	}
	defer lib.Close()

	svc := itemservice.NewService(lib, lib.Attachments(), nil, app.logger)
	if _, err := svc.Sync(ctx, false); err != nil {
		app.logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	app.logger.Info("Starting MCP server on stdio")
	return mcpserver.New(svc, Version).ServeStdio()
}
