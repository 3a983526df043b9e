// Command stdfingest runs a single ingestion pass over one STDF file and
// exits, following the flag-based, run-to-completion shape of the
// teacher's cmd/agent binary rather than its long-running service loop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/foundry/stdfingest/internal/ingest"
	"github.com/foundry/stdfingest/internal/ingesterr"
	"github.com/foundry/stdfingest/internal/ingestconfig"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file (optional; flags below override it)")
	inPath := flag.String("in", "", "STDF file to ingest (.stdf, .stdf.gz, or .stdf.bz2)")
	outPath := flag.String("out", "", "path to write the summary SQLite database")
	logLevel := flag.String("log-level", "", "log level: debug | info | warn | error (default info)")
	flag.Parse()

	var cfg ingestconfig.Config
	if *configPath != "" {
		loaded, err := ingestconfig.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "stdfingest: %v\n", err)
			os.Exit(1)
		}
		cfg = *loaded
	}
	if *inPath != "" {
		cfg.InputPath = *inPath
	}
	if *outPath != "" {
		cfg.DBPath = *outPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.InputPath == "" || cfg.DBPath == "" {
		fmt.Fprintln(os.Stderr, "stdfingest: both -in and -out (or input_path/db_path in -config) are required")
		os.Exit(2)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	result, err := ingest.Ingest(ctx, ingest.Options{
		InputPath:        cfg.InputPath,
		DBPath:           cfg.DBPath,
		ProgressInterval: cfg.ProgressInterval(),
		Logger:           logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "stdfingest: %v\n", err)
		os.Exit(exitCode(err))
	}

	logger.Info("ingestion complete",
		slog.String("db", cfg.DBPath),
		slog.Int64("duts", result.Summary.DutCount),
		slog.Int64("wafers", result.Summary.WaferCount),
	)
}

// exitCode maps a terminal ingestion error to a process exit status, one
// code per ingesterr sentinel so callers scripting this binary can branch
// on failure class without parsing the message.
func exitCode(err error) int {
	switch {
	case errors.Is(err, ingesterr.ErrInvalidSTDF):
		return 10
	case errors.Is(err, ingesterr.ErrWrongVersion):
		return 11
	case errors.Is(err, ingesterr.ErrOSFail):
		return 12
	case errors.Is(err, ingesterr.ErrNoMemory):
		return 13
	case errors.Is(err, ingesterr.ErrMapMissing):
		return 14
	case errors.Is(err, ingesterr.ErrTerminate):
		return 15
	default:
		return 1
	}
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
