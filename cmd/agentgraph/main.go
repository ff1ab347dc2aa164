package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/comigor/agentgraph-go/internal/app"
	"github.com/comigor/agentgraph-go/internal/config"
	"github.com/comigor/agentgraph-go/internal/logger"
)

func main() {
	prepare := flag.String("prepare", "", "build a collection (tools config key, or \"all\") and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetFormat(cfg.Log.Format)
	logger.SetLevel(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.L.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if *prepare != "" {
		if err := a.Prepare(ctx, *prepare); err != nil {
			logger.L.Error("prepare failed", "target", *prepare, "error", err)
			a.Close()
			os.Exit(1)
		}
		return
	}

	go func() {
		logger.L.Info("starting server", "address", a.Server.HTTPServer.Addr)
		if err := a.Server.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Error("failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("shutdown server gracefully", "error", err)
	}
	logger.L.Info("server stopped")
}
