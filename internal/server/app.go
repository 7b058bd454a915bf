// Package server assembles the service from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sb2gs-service/internal/api"
	"github.com/JakeFAU/sb2gs-service/internal/config"
	"github.com/JakeFAU/sb2gs-service/internal/decompiler/sb2gs"
	"github.com/JakeFAU/sb2gs-service/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/sb2gs-service/internal/fetcher/colly"
	"github.com/JakeFAU/sb2gs-service/internal/id/uuid"
	"github.com/JakeFAU/sb2gs-service/internal/logging"
	"github.com/JakeFAU/sb2gs-service/internal/pipeline"
	"github.com/JakeFAU/sb2gs-service/internal/policy/ratelimit"
	queueMemory "github.com/JakeFAU/sb2gs-service/internal/queue/memory"
	"github.com/JakeFAU/sb2gs-service/internal/upstream"
	"github.com/JakeFAU/sb2gs-service/internal/workspace"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	queue     *queueMemory.Queue

	// ready is closed once the listener is bound; addr is valid after that.
	ready chan struct{}
	addr  string
}

// Build creates the application's dependencies.
func Build(cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{
		cfg:    cfg,
		logger: logger,
		ready:  make(chan struct{}),
	}
	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.Strings("token_sources", cfg.Scratch.TokenSources),
		zap.String("workspace", cfg.Workspace.BaseDir),
	)

	ids := uuid.New()

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Scratch.UserAgent,
		Timeout:     cfg.HTTPTimeout(),
		MaxBodySize: cfg.HTTP.MaxBodyBytes,
	})
	limited := ratelimit.NewFetcher(fetcher, ratelimit.New(cfg.Fetch.RateLimit))
	client, err := upstream.New(limited, upstream.Config{
		TokenSources:   cfg.Scratch.TokenSources,
		ProjectsBase:   cfg.Scratch.ProjectsBase,
		AssetsBase:     cfg.Scratch.AssetsBase,
		UserAgent:      cfg.Scratch.UserAgent,
		MaxConcurrency: cfg.Fetch.MaxConcurrency,
	}, logger.Named("upstream"))
	if err != nil {
		return nil, fmt.Errorf("upstream client init failed: %w", err)
	}

	runner, err := sb2gs.New(sb2gs.Config{
		Binary:  cfg.Decompiler.Binary,
		Timeout: cfg.DecompileTimeout(),
	}, logger.Named("sb2gs"))
	if err != nil {
		return nil, fmt.Errorf("decompiler init failed: %w", err)
	}
	if err := runner.Available(); err != nil {
		app.logger.Warn("decompiler not found; decompile requests will fail", zap.Error(err))
	}

	app.queue = queueMemory.NewQueue(cfg.Decompiler.QueueDepth)
	app.dispatch = dispatcher.NewPool(app.queue, runner, cfg.Decompiler.Workers, logger.Named("worker"))
	app.logger.Info("decompiler pool configured",
		zap.String("binary", cfg.Decompiler.Binary),
		zap.Int("workers", cfg.Decompiler.Workers),
		zap.Int("queue_depth", cfg.Decompiler.QueueDepth),
		zap.Duration("timeout", cfg.DecompileTimeout()),
	)

	workspaces, err := workspace.New(cfg.Workspace, ids)
	if err != nil {
		return nil, fmt.Errorf("workspace init failed: %w", err)
	}

	orch, err := pipeline.New(client, app.dispatch, workspaces, pipeline.Config{
		Overwrite: cfg.Decompiler.Overwrite,
		Verify:    cfg.Decompiler.Verify,
	}, logger.Named("pipeline"))
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}

	app.apiServer, err = api.NewServer(orch, ids, api.Config{RequestTimeout: cfg.RequestTimeout()}, logger.Named("api"))
	if err != nil {
		return nil, fmt.Errorf("api init failed: %w", err)
	}
	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Addr returns the bound listen address once Run has started serving.
func (a *App) Addr() string {
	<-a.ready
	return a.addr
}

// Run starts the application and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(a.cfg.Server.Port)))
	if err != nil {
		close(a.ready)
		return fmt.Errorf("listen: %w", err)
	}
	a.addr = ln.Addr().String()
	close(a.ready)

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started")
		a.dispatch.Run(dispatchCtx)
	}()

	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", a.addr))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	// In-flight requests have drained, so no one is waiting on the pool.
	stopDispatch()
	<-dispatchDone

	closeErr := a.Close()
	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	default:
		return closeErr
	}
}

// Close releases the queue and flushes the logger.
func (a *App) Close() error {
	a.queue.Close()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}
