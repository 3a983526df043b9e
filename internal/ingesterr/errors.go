// Package ingesterr defines the closed set of semantic error kinds produced
// by the STDF ingestion engine. The reader's terminal conditions and the
// summarizer's correlation failures are reported as one of these sentinels
// (wrapped with context via fmt.Errorf's %w verb); callers compare with
// errors.Is. SQLite errors from the summarizer and I/O errors from the
// parametric reader are wrapped as they are, without a sentinel.
package ingesterr

import "errors"

var (
	// ErrInvalidSTDF means the first record in the file was not a
	// recognizable FAR (rec_typ=0, rec_sub=10).
	ErrInvalidSTDF = errors.New("stdfingest: not a valid STDF file")

	// ErrWrongVersion means the FAR record's STDF_VER field was not 4.
	ErrWrongVersion = errors.New("stdfingest: unsupported STDF version")

	// ErrOSFail means the underlying file could not be opened or read.
	ErrOSFail = errors.New("stdfingest: OS file operation failed")

	// ErrNoMemory means a payload or correlation-map allocation failed.
	ErrNoMemory = errors.New("stdfingest: allocation failed")

	// ErrEOF marks the normal end of the record stream. It is not treated
	// as a failure: Ingest returns its Result with a nil error when this
	// is the terminal error observed.
	ErrEOF = errors.New("stdfingest: end of stream")

	// ErrTerminate means the caller requested a stop via the shared stop
	// flag before the stream was exhausted.
	ErrTerminate = errors.New("stdfingest: ingestion terminated by caller")

	// ErrMapMissing means a PRR, WRR, or TR-family record referenced a
	// (head, site) or head that was never opened by a prior PIR or WIR.
	ErrMapMissing = errors.New("stdfingest: record references an unopened head/site")
)

// IsTerminal reports whether err represents a condition that should stop
// ingestion (anything other than nil or ErrEOF).
func IsTerminal(err error) bool {
	return err != nil && !errors.Is(err, ErrEOF)
}
