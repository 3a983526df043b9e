// Package summarizer implements the consumer/summarizer (component F):
// it drains the bounded queue fed by the reader thread, decodes each
// record via internal/stdfrec, maintains the cross-record correlation
// state of §3.3, and writes rows into the fixed relational schema of
// §3.4/§6.4 using modernc.org/sqlite — the teacher's embedded-database
// driver of choice (internal/queue.SQLiteQueue), generalized here from an
// alert queue to a full STDF summary schema.
package summarizer

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"

	_ "modernc.org/sqlite"

	"github.com/foundry/stdfingest/internal/ingesterr"
	"github.com/foundry/stdfingest/internal/pipeline"
	"github.com/foundry/stdfingest/internal/summarizer/schema"
)

// headSite packs a (head, site) pair into the single map key used in
// §3.3's head_site_to_dut_index table.
func headSite(head, site uint8) uint16 {
	return uint16(head)<<8 | uint16(site)
}

// correlation is the in-memory cross-record state of §3.3. It has no
// ingestion-lifetime persistence beyond the run that built it.
type correlation struct {
	dutIndex   int64
	waferIndex int64

	seenTestNums   map[uint32]bool
	testFailCount  map[uint32]int64
	headSiteToDut  map[uint16]int64
	headToWafer    map[uint8]int64
}

func newCorrelation() *correlation {
	return &correlation{
		seenTestNums:  make(map[uint32]bool),
		testFailCount: make(map[uint32]int64),
		headSiteToDut: make(map[uint16]int64),
		headToWafer:   make(map[uint8]int64),
	}
}

// Summary is returned by Run, on the error path too: a small set of
// counters useful for logging and for the job ledger (internal/ledger).
type Summary struct {
	RecordsSeen map[string]int64
	DutCount    int64
	WaferCount  int64
}

// Summarizer consumes one reader's queue and writes the embedded SQLite
// summary database at dbPath.
type Summarizer struct {
	dbPath string
	logger *slog.Logger

	db    *sql.DB
	stmts *statements
	corr  *correlation
	order binary.ByteOrder

	seen map[string]int64
}

// New truncates (if present) and opens the database at dbPath, applies
// the pragmas and schema of §6.4, and prepares every statement the
// handlers need. The caller must call Close when Run returns, on every
// path, matching the teacher's "database handle closes even when
// ingestion raises" resource-discipline note (§5).
func New(dbPath string, logger *slog.Logger) (*Summarizer, error) {
	// R2: reparsing against the same path truncates first so two runs
	// produce byte-identical databases.
	if dbPath != ":memory:" {
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("summarizer: remove existing db %q: %w", dbPath, err)
		}
		for _, suffix := range []string{"-wal", "-shm"} {
			_ = os.Remove(dbPath + suffix)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("summarizer: open %q: %w", dbPath, err)
	}

	// SQLite allows one writer; the ingestion engine is itself
	// single-writer (only the summarizer goroutine touches the DB), so a
	// single pooled connection avoids "database is locked" without any
	// extra locking in this package, matching internal/queue.New.
	db.SetMaxOpenConns(1)

	for _, pragma := range schema.PragmaStatements {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("summarizer: pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema.DDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("summarizer: apply schema: %w", err)
	}

	if _, err := db.Exec("BEGIN"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("summarizer: begin transaction: %w", err)
	}

	stmts, err := prepareStatements(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("summarizer: prepare statements: %w", err)
	}

	return &Summarizer{
		dbPath: dbPath,
		logger: logger,
		db:     db,
		stmts:  stmts,
		corr:   newCorrelation(),
		seen:   make(map[string]int64),
	}, nil
}

// Close finalizes every prepared statement and closes the database
// handle. Safe to call exactly once, on every return path from Run's
// caller (§5).
func (s *Summarizer) Close() error {
	if s.stmts != nil {
		s.stmts.close()
	}
	return s.db.Close()
}

// Run drains in until it observes an OpFinish message, dispatching each
// OpParse message to the handler for its record code (§4.3). It returns
// (Summary, nil) when the reader finishes with ErrEOF and no handler
// failed. Any other error carried by the reader's FINISH message,
// ErrTerminate included, is returned so the caller can distinguish a stop
// request from genuine completion. After the first handler error Run
// stops dispatching but keeps dequeuing until OpFinish, so the reader
// goroutine is never left blocked on a full queue; that first error is
// then returned.
func (s *Summarizer) Run(in *pipeline.Queue) (Summary, error) {
	var firstErr error

	for {
		msg := in.Dequeue()

		switch msg.Op {
		case pipeline.OpSetEndian:
			// Latch the reader's detected byte order; every subsequent
			// OpParse payload is decoded with it.
			s.order = msg.Order

		case pipeline.OpFinish:
			if msg.Err != nil && !isEOF(msg.Err) {
				firstErr = msg.Err
			}
			return s.finish(firstErr)

		case pipeline.OpParse:
			if firstErr != nil {
				// A handler error was already observed; keep draining so
				// the reader goroutine (blocked on a full queue, or
				// about to send OpFinish) is never stuck, but stop doing
				// further work.
				continue
			}
			if err := s.dispatch(msg); err != nil {
				firstErr = err
			}
		}
	}
}

func isEOF(err error) bool {
	return err != nil && (err == ingesterr.ErrEOF)
}

// finish performs the post-processing of §4.4 and returns the final
// Summary. When firstErr is non-nil the in-progress transaction is rolled
// back implicitly by simply not committing (the caller closes the
// database handle regardless); post-processing is skipped so a malformed
// file never produces a partially-backfilled FailCount pass.
func (s *Summarizer) finish(firstErr error) (Summary, error) {
	if firstErr != nil {
		return Summary{RecordsSeen: s.seen, DutCount: s.corr.dutIndex, WaferCount: s.corr.waferIndex}, firstErr
	}

	for testNum, count := range s.corr.testFailCount {
		if _, err := s.stmts.updateTestFailCount.Exec(count, testNum); err != nil {
			return Summary{}, fmt.Errorf("summarizer: flush fail counts: %w", err)
		}
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS dutKey ON Dut_Info (HEAD_NUM ASC, SITE_NUM ASC)"); err != nil {
		return Summary{}, fmt.Errorf("summarizer: create dutKey index: %w", err)
	}
	if _, err := s.db.Exec("COMMIT"); err != nil {
		return Summary{}, fmt.Errorf("summarizer: final commit: %w", err)
	}

	return Summary{
		RecordsSeen: s.seen,
		DutCount:    s.corr.dutIndex,
		WaferCount:  s.corr.waferIndex,
	}, nil
}
