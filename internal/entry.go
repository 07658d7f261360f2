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
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/canvasfocus/internal/api"
	"github.com/starford/canvasfocus/internal/focus"
	"github.com/starford/canvasfocus/internal/index"
	"github.com/starford/canvasfocus/internal/mcpserver"
	"github.com/starford/canvasfocus/internal/noteservice"
	"github.com/starford/canvasfocus/internal/prompt"
	"github.com/starford/canvasfocus/internal/scratch"
	"github.com/starford/canvasfocus/internal/settings"
	"github.com/starford/canvasfocus/internal/sse"
	"github.com/starford/canvasfocus/internal/storage"
	"github.com/starford/canvasfocus/internal/surface"
	"github.com/starford/canvasfocus/internal/workspace"
)

// NewLogger builds the JSON logger described by cfg. In MCP mode stdout
// carries the protocol, so logs go to stderr unless a log file is set.
func NewLogger(cfg *Config, mode string) (*slog.Logger, io.Closer) {
	var out io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)
	switch {
	case cfg.App.LogFile != "":
		lj := &lumberjack.Logger{
			Filename:   cfg.App.LogFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		out, closer = lj, lj
	case mode == ModeMCP:
		out = os.Stderr
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	})), closer
}

// SweepScratch removes every document in the scratch area of the configured
// vault and returns how many were deleted.
func SweepScratch(cfg *Config, logger *slog.Logger) (int, error) {
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return 0, fmt.Errorf("init storage: %w", err)
	}
	return scratch.New(store, cfg.Focus.ScratchPath, logger).Sweep()
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{mode: ModeServe}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger, logCloser := NewLogger(cfg, app.mode)
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("mode", app.mode),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("scratch_path", cfg.Focus.ScratchPath),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	// Initialize storage.
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Initialize SQLite index.
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	scratchStore := scratch.New(store, cfg.Focus.ScratchPath, logger)
	stateDir := strings.Trim(path.Clean("/"+cfg.Focus.StateDir), "/")
	skip := func(p string) bool {
		return scratchStore.Contains(p) || p == stateDir || strings.HasPrefix(p, stateDir+"/")
	}

	// Run initial sync.
	if err := index.Sync(db, store, skip, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	st := settings.Load(store, path.Join(stateDir, settings.DefaultFile), settings.State{
		Enabled:         cfg.Focus.Enabled,
		PinnedByDefault: cfg.Focus.PinnedByDefault,
		FocusOnOpen:     cfg.Focus.FocusOnOpen,
		ScratchPath:     cfg.Focus.ScratchPath,
	}, logger)
	ws := workspace.New(store, path.Join(stateDir, workspace.DefaultFile), broker, logger)

	ctrl := focus.New(focus.Deps{
		Store:     store,
		Settings:  st,
		Scratch:   scratchStore,
		Host:      ws,
		Publisher: broker,
		Logger:    logger,
	}, focus.Options{
		SelectionInterval: cfg.Focus.SelectionInterval,
		NodeInterval:      cfg.Focus.NodeInterval,
		DocumentDebounce:  cfg.Focus.DocumentDebounce,
		CanvasSaveDelay:   cfg.Canvas.PersistDebounce,
		SurfaceKind:       surface.Kind(cfg.Focus.SurfaceKind),
		PromoteFolder:     cfg.Focus.PromoteFolder,
	})
	ws.OnClose(ctrl.SurfaceClosed)

	notes := noteservice.NewService(store, db)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ctrl.Run(gCtx)
	})

	if cfg.Canvas.Path != "" {
		g.Go(func() error {
			if err := ctrl.ActivatePath(cfg.Canvas.Path); err != nil {
				logger.Warn("activate canvas failed",
					slog.String("path", cfg.Canvas.Path),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start file watcher. Document changes outside the scratch area go to
	// the SSE broker; the controller hears about scratch documents and
	// canvases.
	watcher := &index.Watcher{
		DB:     db,
		Store:  store,
		Root:   cfg.Vault.Path,
		Logger: logger,
		Skip:   skip,
		OnChange: func(kind, p string) {
			if !scratchStore.Contains(p) {
				broker.PublishNoteEvent(kind, p)
			}
			if strings.HasSuffix(p, ".canvas") {
				if kind != index.KindDeleted {
					_ = ctrl.CanvasChanged(p)
				}
				return
			}
			ctrl.DocumentChanged(p)
		},
	}
	g.Go(func() error {
		return watcher.Run(gCtx)
	})

	if app.mode == ModeMCP {
		srv := mcpserver.New(notes, ctrl)
		g.Go(func() error {
			logger.Info("Starting MCP stdio server")
			if err := srv.ServeStdio(gCtx); err != nil {
				return fmt.Errorf("MCP server error: %w", err)
			}
			if gCtx.Err() != nil {
				return nil
			}
			// stdin closed: the client went away.
			return errStdioClosed
		})
	} else {
		httpServer := newHTTPServer(cfg, notes, ctrl, ws, broker)
		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			return errShutdown
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) && !errors.Is(err, errStdioClosed) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// Sentinels that end the errgroup without being reported as failures.
var (
	errShutdown    = errors.New("shutdown requested")
	errStdioClosed = errors.New("stdio closed")
)

func newHTTPServer(cfg *Config, notes *noteservice.Service, ctrl *focus.Controller, ws *workspace.Workspace, broker *sse.Broker) *http.Server {
	apiRouter := api.NewRouter(api.Deps{
		Notes:       notes,
		Focus:       ctrl,
		Prompts:     prompt.NewBroker(broker),
		Surfaces:    ws,
		Events:      broker,
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
	})

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
		if _, err := ctrl.State(); err != nil {
			http.Error(w, `{"status":"stopped"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	return &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}
}
