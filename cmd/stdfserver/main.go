// Command stdfserver starts the REST + websocket control plane: it
// accepts job submissions over HTTP, runs them against internal/ingest,
// and streams progress to subscribed consoles, optionally persisting job
// history to the internal/ledger Postgres store. Shutdown follows the
// teacher's cmd/server graceful-drain pattern.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foundry/stdfingest/internal/apiserver"
	"github.com/foundry/stdfingest/internal/apiserver/rest"
	"github.com/foundry/stdfingest/internal/ingestconfig"
	"github.com/foundry/stdfingest/internal/ledger"
)

func main() {
	configPath := flag.String("config", "/etc/stdfingest/server.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := ingestconfig.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stdfserver: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("stdfserver starting",
		slog.String("listen_addr", cfg.API.ListenAddr),
		slog.Bool("jwt_enabled", cfg.API.JWTSecret != ""),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var led *ledger.Ledger
	if cfg.Ledger.DSN != "" {
		led, err = ledger.Open(ctx, cfg.Ledger.DSN)
		if err != nil {
			logger.Error("failed to open ledger", slog.Any("error", err))
			os.Exit(1)
		}
		defer led.Close()
		logger.Info("ledger connected")
	} else {
		logger.Warn("no ledger DSN configured; job history is in-process only and lost on restart")
	}

	registry := apiserver.New(led, logger)
	restSrv := rest.NewServer(registry, logger)
	handler := rest.NewRouter(restSrv, cfg.API.JWTSecret)

	httpServer := &http.Server{
		Addr:         cfg.API.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket progress streams are long-lived
		IdleTimeout:  60 * time.Second,
	}

	httpErrCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", cfg.API.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErrCh <- fmt.Errorf("HTTP server: %w", err)
		}
		close(httpErrCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-httpErrCh:
		if err != nil {
			logger.Error("HTTP server error", slog.Any("error", err))
		}
	}

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", slog.Any("error", err))
	}

	logger.Info("stdfserver exited cleanly")
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
