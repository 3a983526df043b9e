// Package analyzer implements the lightweight analysis path (component
// I): the same detector-plus-reader pipeline as full ingestion, but the
// consumer only tallies a record-type histogram instead of writing SQL
// rows, giving callers a fast structural summary of a file (record mix,
// total counts) without the cost of opening a database.
package analyzer

import (
	"log/slog"

	"github.com/foundry/stdfingest/internal/ingesterr"
	"github.com/foundry/stdfingest/internal/pipeline"
	"github.com/foundry/stdfingest/internal/reader"
	"github.com/foundry/stdfingest/internal/stdfio"
)

// Histogram maps each enqueued record type's mnemonic to the number of
// times it was seen.
type Histogram map[string]int64

// Analyze opens path, detects its byte order, and walks every enqueued
// record, returning a Histogram. It returns a nil error for a clean
// end-of-file; any other error aborts early with whatever counts had
// accumulated so far.
func Analyze(path string, logger *slog.Logger) (Histogram, error) {
	src, err := stdfio.Open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	queue := pipeline.NewQueue(pipeline.AnalyzerCapacity)
	rdr := reader.New(src, queue, logger)

	go rdr.Run()

	hist := make(Histogram)
	for {
		msg := queue.Dequeue()
		switch msg.Op {
		case pipeline.OpParse:
			hist[msg.RecordCode.String()]++
		case pipeline.OpFinish:
			if msg.Err != nil && msg.Err != ingesterr.ErrEOF {
				return hist, msg.Err
			}
			return hist, nil
		}
	}
}
