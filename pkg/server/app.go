package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	drepo "StockCast/internal/domain/repository"
	"StockCast/internal/scheduler"
	"StockCast/pkg/config"
	xhttp "StockCast/pkg/http"
	applogger "StockCast/pkg/logger"
	"StockCast/pkg/queue"
)

// App encapsulates the application lifecycle: the worker queue, the
// background scheduler and the HTTP server, started together and shut
// down in reverse order on SIGINT/SIGTERM.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	store      drepo.BarStore
	queue      *queue.MemoryQueue
	sched      *scheduler.Scheduler
	handler    xhttp.Handler
	httpServer *xhttp.Server
}

// New creates the application from its wired dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	store drepo.BarStore,
	q *queue.MemoryQueue,
	sched *scheduler.Scheduler,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:     cfg,
		logger:  l,
		store:   store,
		queue:   q,
		sched:   sched,
		handler: handler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	if err := a.queue.Start(); err != nil {
		return err
	}
	if err := a.sched.Start(); err != nil {
		return err
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.logger),
	)
	if err := a.httpServer.Start(); err != nil {
		return err
	}
	a.logger.Info("serving",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Strings("instruments", a.cfg.Instruments))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops accepting requests first, then drains background work.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	a.sched.Stop()
	a.queue.Stop()

	if err := a.store.Close(); err != nil {
		a.logger.Warn("bar store close error", applogger.Error(err))
	}

	a.logger.Info("shutdown complete")
	return nil
}
