// Package parametric implements the parametric reader (component H): it
// takes back the (offset, length) pairs the summarizer wrote into
// Test_Offsets and re-reads the originating records straight out of the
// source file, decoding only the one numeric value the bulk retrieval
// API needs per record rather than replaying the whole ingestion
// pipeline. Rows decode independently, so the per-row work fans out
// across a worker pool the same way the teacher's internal/agent
// orchestrator fans work out across goroutines bounded by a fixed pool
// size.
package parametric

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"runtime"
	"sync"

	"github.com/foundry/stdfingest/internal/stdfrec"
)

// Row is one (offset, length) pair as stored in Test_Offsets. A negative
// Offset or non-positive Length marks a row with no recoverable data
// (§4.6's "missing row" case): the file never held a record for this
// DUT/TEST_NUM pair, most often because the test did not execute for
// that part.
type Row struct {
	Offset int64
	Length int32
}

// Result holds one decoded value (or NaN) and a validity flag per input
// Row, in the same order.
type Result struct {
	Values []float64
	Valid  []bool
}

// Read reads each row's [Offset, Offset+Length) span in f — exactly the
// record payload, with no header, matching how the reader originally
// captured Offset as the position right after the 4-byte header it had
// already consumed — and decodes the numeric value appropriate to code:
// PTR.Result, or TEST_FLG cast straight to float64 for MPR and FTR alike.
// A caller reconstructing the full original
// record (header included) seeks to Offset-4 and reads Length+4 bytes
// (§4.6's P5 property); Read itself only needs the payload. Decoding
// fans out across min(GOMAXPROCS, len(rows)) workers; f is read
// concurrently via ReadAt so no worker needs its own file handle.
func Read(f *os.File, order binary.ByteOrder, code stdfrec.Code, rows []Row) (Result, error) {
	res := Result{
		Values: make([]float64, len(rows)),
		Valid:  make([]bool, len(rows)),
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(rows) {
		workers = len(rows)
	}
	if workers < 1 {
		return res, nil
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		firstErr error
	)
	jobs := make(chan int)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				value, valid, err := decodeRow(f, order, code, rows[i])
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("parametric: row %d: %w", i, err)
					}
					mu.Unlock()
					continue
				}
				res.Values[i] = value
				res.Valid[i] = valid
			}
		}()
	}
	for i := range rows {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return res, firstErr
}

func decodeRow(f *os.File, order binary.ByteOrder, code stdfrec.Code, row Row) (value float64, valid bool, err error) {
	if row.Offset < 0 || row.Length <= 0 {
		return math.NaN(), false, nil
	}

	buf := make([]byte, row.Length)
	if _, err := f.ReadAt(buf, row.Offset); err != nil {
		return math.NaN(), false, fmt.Errorf("read at offset %d: %w", row.Offset, err)
	}

	switch code {
	case stdfrec.CodePTR:
		p := stdfrec.DecodePTR(buf, order)
		return float64(p.Result), true, nil

	case stdfrec.CodeMPR:
		m := stdfrec.DecodeMPR(buf, order)
		return float64(m.TestFlg), true, nil

	case stdfrec.CodeFTR:
		f := stdfrec.DecodeFTR(buf, order)
		return float64(f.TestFlg), true, nil

	default:
		return math.NaN(), false, fmt.Errorf("unsupported record code %s for parametric retrieval", code)
	}
}
