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

	"github.com/starford/notes/internal/api"
	"github.com/starford/notes/internal/live"
	"github.com/starford/notes/internal/mcpserver"
	"github.com/starford/notes/internal/notestore"
	"github.com/starford/notes/internal/search"
	"github.com/starford/notes/internal/sse"
	"github.com/starford/notes/internal/watch"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg, logger := app.config, app.logger
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("storage_key", cfg.Storage.Key),
		slog.String("carrier", cfg.Search.Carrier),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(cfg.Live.Throttle)
	defer broker.Close()

	// The session is created after the store; the hook only fires on mutations.
	var session *live.Session
	core, err := NewCore(cfg, logger, notestore.WithHook(func(ev notestore.Event) {
		broker.PublishChange(sse.Change{
			Type:      string(ev.Type),
			ID:        ev.ID,
			Count:     ev.Count,
			Persisted: ev.Persisted,
		})
		if session != nil {
			session.Refresh()
		}
	}))
	if err != nil {
		return err
	}
	defer core.Close()

	// Fail fast on an unreadable blob instead of on the first request.
	all, err := core.Store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load notes: %w", err)
	}
	logger.Info("Notes loaded", slog.Int("count", all.Len()))

	session = live.NewSession(core.Results,
		live.WithDebounce(cfg.Live.Debounce),
		live.WithLogger(logger),
		live.WithOnApply(func(r live.Result) {
			broker.Publish(sse.Event{Type: "filter.applied", Data: map[string]any{
				"seq":   r.Seq,
				"input": r.Input,
				"count": len(r.Items),
			}})
		}),
	)
	defer session.Close()
	session.Refresh()

	h := api.NewHandler(core.Store, session, core.Renderer, core.Highlight...)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if core.Store.Dirty() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded","reason":"notes not persisted"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if path, ok := core.BlobPath(); ok && cfg.Storage.Watch {
		g.Go(func() error {
			if err := watch.Watch(gCtx, core.Store, path, watch.DefaultDebounce, logger); err != nil {
				logger.Warn("watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
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

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// SSE streams only end when the broker closes.
		broker.Close()

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

	if core.Store.Dirty() {
		logger.Warn("Stopped with notes not persisted", slog.String("key", cfg.Storage.Key))
	}
	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the note tools over stdio. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	cfg, logger := app.config, app.logger
	slog.SetDefault(logger)

	core, err := NewCore(cfg, logger)
	if err != nil {
		return err
	}
	defer core.Close()

	srv := mcpserver.New(core.Store, core.Renderer, core.Highlight...)

	g, gCtx := errgroup.WithContext(ctx)
	if path, ok := core.BlobPath(); ok && cfg.Storage.Watch {
		g.Go(func() error {
			if err := watch.Watch(gCtx, core.Store, path, watch.DefaultDebounce, logger); err != nil {
				logger.Warn("watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}
	g.Go(func() error {
		logger.Info("MCP server starting on stdio")
		err := srv.ServeStdio()
		if err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		return err
	}
	return nil
}

// Search runs a one-off query against the stored notes and passes each
// result to out, newest first. It returns the total number of notes.
func Search(ctx context.Context, query string, out func(r search.Result), opts ...Option) (total int, err error) {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return 0, err
	}
	core, err := NewCore(app.config, app.logger)
	if err != nil {
		return 0, err
	}
	defer core.Close()

	all, err := core.Store.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, r := range search.Results(all, query, core.Renderer, core.Highlight...) {
		out(r)
	}
	return all.Len(), nil
}

// Generate adds demo notes and returns them.
func Generate(ctx context.Context, gen notestore.GenerateOptions, opts ...Option) ([]string, error) {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return nil, err
	}
	core, err := NewCore(app.config, app.logger)
	if err != nil {
		return nil, err
	}
	defer core.Close()

	notes, err := notestore.Generate(ctx, core.Store, gen)
	ids := make([]string, len(notes))
	for i, n := range notes {
		ids[i] = n.ID
	}
	return ids, err
}
