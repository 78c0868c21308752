package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/searchktools/tiny-server/config"
	"github.com/searchktools/tiny-server/core"
	"github.com/searchktools/tiny-server/core/middleware"
)

// App wires configuration, logging and telemetry around an engine.
type App struct {
	cfg    *config.Config
	engine *core.Engine
	logger *slog.Logger

	mu   sync.Mutex
	addr net.Addr
}

// New creates an application instance. The engine gets the recovery and
// access log middleware, plus request IDs when cfg.RequestID is set, and
// cfg.Directory is mounted when set.
func New(cfg *config.Config) *App {
	logger := NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	engine := core.NewEngine(core.Options{
		Workers:      cfg.Workers,
		BodyLimit:    cfg.BodyLimit,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Logger:       logger,
	})
	return NewWithEngine(cfg, engine, logger)
}

// NewWithEngine creates an application instance with a pre-configured engine
func NewWithEngine(cfg *config.Config, engine *core.Engine, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}

	engine.Use(middleware.Recovery(logger))
	if cfg.RequestID {
		engine.Use(middleware.RequestID())
	}
	engine.Use(middleware.AccessLog(logger))

	if cfg.Directory != "" {
		if err := engine.Static(cfg.StaticPrefix, cfg.Directory); err != nil {
			logger.Error("static directory not mounted",
				slog.String("dir", cfg.Directory),
				slog.Any("error", err))
		}
	}

	return &App{
		cfg:    cfg,
		engine: engine,
		logger: logger,
	}
}

// Engine returns the underlying engine for route registration
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Addr returns the bound listen address once the server is running.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext serves until ctx is done, then shuts down within the configured
// shutdown timeout.
func (a *App) RunContext(ctx context.Context) error {
	shutdownTelemetry := func(context.Context) error { return nil }
	if a.cfg.Telemetry {
		shutdown, err := SetupTelemetry(ctx, a.cfg.Env)
		if err != nil {
			return fmt.Errorf("telemetry setup: %w", err)
		}
		shutdownTelemetry = shutdown
	}

	ln, err := a.engine.Listen(a.cfg.Addr())
	if err != nil {
		return errors.Join(err, shutdownTelemetry(context.Background()))
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	a.logger.Info("tiny-server starting",
		slog.String("addr", ln.Addr().String()),
		slog.String("env", a.cfg.Env),
		slog.Int("workers", a.cfg.Workers))

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.engine.Serve(ln) }()

	select {
	case err := <-serveErr:
		return errors.Join(err, shutdownTelemetry(context.Background()))
	case <-ctx.Done():
		a.logger.Info("shutting down", slog.Any("reason", context.Cause(ctx)))
	}

	sctx := context.Background()
	if a.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(sctx, a.cfg.ShutdownTimeout)
		defer cancel()
	}

	err = a.engine.Shutdown(sctx)
	err = errors.Join(err, <-serveErr, shutdownTelemetry(sctx))
	if err != nil {
		a.logger.Error("shutdown incomplete", slog.Any("error", err))
	}
	return err
}
