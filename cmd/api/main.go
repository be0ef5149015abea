// Command api serves the loadpulse control plane: start load/stress/API
// tests over HTTP, query their status, and stream live telemetry over a
// websocket.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/loadpulse/loadpulse/pkg/broker"
	"github.com/loadpulse/loadpulse/pkg/config"
	"github.com/loadpulse/loadpulse/pkg/controllers"
	"github.com/loadpulse/loadpulse/pkg/handlers"
	"github.com/loadpulse/loadpulse/pkg/middlewares"
	"github.com/loadpulse/loadpulse/pkg/resources"
	"github.com/loadpulse/loadpulse/pkg/routes"
	"github.com/loadpulse/loadpulse/pkg/timeseries"
)

func main() {
	cfg := config.Load()

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}

	slog.Info("starting loadpulse",
		"environment", cfg.Environment,
		"port", cfg.ServerPort,
	)

	e := echo.New()
	middlewares.Setup(e, logger)

	ctrl := controllers.New(broker.NewRegistry(), broker.NewRunFlag(), broker.NewLiveBroker(logger), timeseries.New(), logger)
	h := handlers.New(ctrl, resources.NewRuntimeSampler(), logger)
	routes.Setup(e, h)

	go func() {
		addr := ":" + cfg.ServerPort
		slog.Info("server starting", "address", addr)
		if err := e.Start(addr); err != nil {
			slog.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server exited")
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
