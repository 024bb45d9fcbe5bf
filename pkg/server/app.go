package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"SalesCast/pkg/config"
	xhttp "SalesCast/pkg/http"
	applogger "SalesCast/pkg/logger"
)

// App encapsulates the application lifecycle: it serves HTTP until a
// signal arrives, then shuts the server down and closes resources in order.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	handler    xhttp.Handler
	httpServer *xhttp.Server
	closers    []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// New creates an App serving handler.
func New(cfg *config.Config, log *applogger.Logger, handler xhttp.Handler) *App {
	if log == nil {
		log = applogger.Nop()
	}
	a := &App{cfg: cfg, log: log, handler: handler}
	a.httpServer = xhttp.NewServer(handler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS, cfg.Server.CORSOrigins...),
		xhttp.WithMetrics(cfg.Metrics.Enabled, cfg.Metrics.Path),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithLogger(log),
	)
	return a
}

// OnClose registers a resource closed during shutdown. Resources close in
// reverse registration order. Nil closers are ignored.
func (a *App) OnClose(name string, c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, namedCloser{name: name, c: c})
	}
}

// Server returns the HTTP server.
func (a *App) Server() *xhttp.Server { return a.httpServer }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext serves until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("salescast started",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("source", a.cfg.Source.Type))

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", nc.name), applogger.Error(err))
			errs = append(errs, err)
		}
	}
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
