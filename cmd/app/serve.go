package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"virtual_market/internal/api"
	"virtual_market/internal/app"

	"github.com/google/subcommands"
)

type serveCmd struct {
	addr string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "runs the HTTP API" }
func (*serveCmd) Usage() string {
	return `serve [-addr :8080]

Serves quotes, orders and portfolios over HTTP until interrupted.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "", "listen address; overrides server.addr")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap := app.NewBootstrap()
	defer bootstrap.Close()
	if err := bootstrap.Initialize(ctx, *configPath, os.Stdout); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		return subcommands.ExitFailure
	}
	logger := bootstrap.Logger

	addr := bootstrap.Config.Server.Addr
	if c.addr != "" {
		addr = c.addr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(bootstrap.Trading, bootstrap.Metrics, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", slog.Any("error", err))
			return subcommands.ExitFailure
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", slog.Any("error", err))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
