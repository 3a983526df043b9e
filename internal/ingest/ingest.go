// Package ingest wires the detector, reader thread, queue, summarizer,
// and progress reporter into the single Ingest entry point described by
// §2's component table — the orchestration layer, analogous to the
// teacher's internal/agent.Agent tying its watcher, queue, and uploader
// together behind one Start/Stop lifecycle.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foundry/stdfingest/internal/pipeline"
	"github.com/foundry/stdfingest/internal/progress"
	"github.com/foundry/stdfingest/internal/reader"
	"github.com/foundry/stdfingest/internal/stdfio"
	"github.com/foundry/stdfingest/internal/summarizer"
)

// DefaultProgressInterval is used when Options.ProgressInterval is zero.
const DefaultProgressInterval = 100 * time.Millisecond

// Options configures a single ingestion run.
type Options struct {
	// InputPath is the STDF file to ingest; .gz and .bz2 suffixes select
	// a decompressing Source transparently (internal/stdfio.Open).
	InputPath string
	// DBPath is where the summary SQLite database is written. Any
	// existing file (and its -wal/-shm siblings) is removed first (R2).
	DBPath string
	// ProgressInterval overrides DefaultProgressInterval.
	ProgressInterval time.Duration
	// ProgressSinks receive periodic 0-10000 scale updates (§4.5). May be
	// empty; the reporter goroutine is skipped entirely in that case.
	ProgressSinks []progress.Sink
	Logger        *slog.Logger
}

// Result is returned by Ingest; after the database has been opened it is
// filled in on the error path too, with the counters reached so far.
type Result struct {
	Summary summarizer.Summary
	// FileSize is the byte length reported by the Source (the uncompressed
	// length for .gz, the on-disk length for plain and .bz2 files), used
	// as the progress denominator and exposed so callers can log it.
	FileSize int64
}

// Ingest runs one full producer/consumer pass over opts.InputPath and
// returns once both the reader thread and the summarizer have finished.
// A non-nil error means ingestion did not complete cleanly; whatever
// rows were committed before the failing record remain in the database
// at opts.DBPath (the last completed PRR's COMMIT boundary, §3.4).
//
// Cancelling ctx requests cooperative termination (§5): the reader stops
// at the next record boundary and Ingest returns ingesterr.ErrTerminate.
func Ingest(ctx context.Context, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	src, err := stdfio.Open(opts.InputPath)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: open %q: %w", opts.InputPath, err)
	}
	defer src.Close()

	size, err := src.Size()
	if err != nil {
		logger.Warn("ingest: could not determine file size, progress reporting disabled", slog.Any("error", err))
		size = 0
	}

	sum, err := summarizer.New(opts.DBPath, logger)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: open summary database: %w", err)
	}
	defer sum.Close()

	queue := pipeline.NewQueue(pipeline.IngestionCapacity)
	rdr := reader.New(src, queue, logger)

	progressCtx, cancelProgress := context.WithCancel(context.Background())
	defer cancelProgress()
	reporterDone := make(chan struct{})
	if len(opts.ProgressSinks) > 0 && size > 0 {
		reporter := progress.New(rdr.Offset, size, interval, opts.ProgressSinks...)
		go func() {
			defer close(reporterDone)
			reporter.Run(progressCtx)
		}()
	} else {
		close(reporterDone)
	}

	stopWatch, cancelStopWatch := context.WithCancel(context.Background())
	defer cancelStopWatch()
	go func() {
		select {
		case <-ctx.Done():
			rdr.RequestStop()
		case <-stopWatch.Done():
		}
	}()

	var readerDone sync.WaitGroup
	readerDone.Add(1)
	go func() {
		defer readerDone.Done()
		rdr.Run()
	}()

	summary, err := sum.Run(queue)
	// sum.Run returns only after dequeuing the reader's OpFinish message,
	// so the reader goroutine has already sent its final message by this
	// point; Wait makes that join explicit (§5). Waiting on reporterDone
	// guarantees the reporter's final publish has reached every sink
	// before Ingest returns.
	readerDone.Wait()
	cancelStopWatch()
	cancelProgress()
	<-reporterDone
	if err != nil {
		return Result{Summary: summary, FileSize: size}, fmt.Errorf("ingest: %w", err)
	}

	logger.Info("ingest: completed",
		slog.String("input", opts.InputPath),
		slog.String("db", opts.DBPath),
		slog.Int64("duts", summary.DutCount),
		slog.Int64("wafers", summary.WaferCount),
	)
	return Result{Summary: summary, FileSize: size}, nil
}
