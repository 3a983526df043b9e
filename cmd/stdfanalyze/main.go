// Command stdfanalyze runs the lightweight pass-one record-type
// histogram (internal/analyzer) over an STDF file and prints the result
// to stdout; it never opens a summary database.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/foundry/stdfingest/internal/analyzer"
)

func main() {
	inPath := flag.String("in", "", "STDF file to analyze (.stdf, .stdf.gz, or .stdf.bz2)")
	logLevel := flag.String("log-level", "warn", "log level: debug | info | warn | error")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "stdfanalyze: -in is required")
		os.Exit(2)
	}

	logger := newLogger(*logLevel)

	hist, err := analyzer.Analyze(*inPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stdfanalyze: %v\n", err)
		os.Exit(1)
	}

	codes := make([]string, 0, len(hist))
	for code := range hist {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var total int64
	for _, code := range codes {
		count := hist[code]
		total += count
		fmt.Printf("%-6s %d\n", code, count)
	}
	fmt.Printf("%-6s %d\n", "TOTAL", total)
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelWarn
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
