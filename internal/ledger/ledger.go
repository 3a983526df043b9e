// Package ledger is the optional Postgres-backed job ledger: it records
// every ingestion job's lifecycle (queued, running, succeeded, failed)
// so a REST client (internal/apiserver/rest) can poll a job's status
// after submitting it asynchronously. The pgxpool-backed Store shape is
// grounded on internal/server/storage.Store; the tamper-evident history
// entries are internal/audit's SHA-256 hash chain, re-pointed from an
// append-only local file at rows in a Postgres table.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GenesisHash is the prev_hash of the first history entry recorded for a
// job, matching internal/audit.GenesisHash's all-zero convention.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

const schemaDDL = `
CREATE TABLE IF NOT EXISTS ingest_jobs (
    job_id        UUID PRIMARY KEY,
    input_path    TEXT NOT NULL,
    db_path       TEXT NOT NULL,
    status        TEXT NOT NULL,
    error_message TEXT,
    dut_count     BIGINT NOT NULL DEFAULT 0,
    wafer_count   BIGINT NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ingest_job_history (
    job_id     UUID NOT NULL REFERENCES ingest_jobs(job_id),
    seq        BIGINT NOT NULL,
    ts         TIMESTAMPTZ NOT NULL,
    payload    JSONB NOT NULL,
    prev_hash  TEXT NOT NULL,
    event_hash TEXT NOT NULL,
    PRIMARY KEY (job_id, seq)
);
`

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is one row of ingest_jobs.
type Job struct {
	ID           uuid.UUID
	InputPath    string
	DBPath       string
	Status       Status
	ErrorMessage string
	DutCount     int64
	WaferCount   int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HistoryEntry is one row of ingest_job_history: a hash-chained record of
// a single status transition.
type HistoryEntry struct {
	JobID     uuid.UUID
	Seq       int64
	Timestamp time.Time
	Payload   json.RawMessage
	PrevHash  string
	EventHash string
}

type entryContent struct {
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
	PrevHash  string          `json:"prev_hash"`
}

func hashContent(c entryContent) string {
	b, _ := json.Marshal(c)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Ledger is a pgxpool-backed client for the ingest_jobs/ingest_job_history
// tables. It is safe for concurrent use; pgxpool itself pools connections.
type Ledger struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, pings the database, and ensures the schema
// exists. An empty dsn is rejected by the caller before Open is ever
// called — internal/ingestconfig.Config.Ledger.DSN being empty means the
// ledger is disabled for this run, not that Open should be attempted
// against an empty connection string.
func Open(ctx context.Context, dsn string) (*Ledger, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	return &Ledger{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (l *Ledger) Close() {
	l.pool.Close()
}

// CreateJob inserts a new job row in StatusQueued and appends the
// genesis history entry. The caller receives the generated job ID.
func (l *Ledger) CreateJob(ctx context.Context, inputPath, dbPath string) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now()

	_, err := l.pool.Exec(ctx, `
		INSERT INTO ingest_jobs (job_id, input_path, db_path, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		id, inputPath, dbPath, string(StatusQueued), now,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("ledger: create job: %w", err)
	}

	if err := l.appendHistory(ctx, id, now, map[string]any{"status": StatusQueued}); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// UpdateStatus transitions a job's status, optionally recording an error
// message and final counts, and appends a chained history entry.
func (l *Ledger) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, errMsg string, dutCount, waferCount int64) error {
	now := time.Now()

	_, err := l.pool.Exec(ctx, `
		UPDATE ingest_jobs
		SET status = $2, error_message = NULLIF($3, ''), dut_count = $4, wafer_count = $5, updated_at = $6
		WHERE job_id = $1`,
		id, string(status), errMsg, dutCount, waferCount, now,
	)
	if err != nil {
		return fmt.Errorf("ledger: update status: %w", err)
	}

	payload := map[string]any{"status": status}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	return l.appendHistory(ctx, id, now, payload)
}

// appendHistory reads the job's last history entry's hash (or
// GenesisHash if none exists) and writes the next hash-chained entry,
// the same SHA-256(seq, ts, payload, prev_hash) construction
// internal/audit.Logger.Append uses for its local-file chain.
func (l *Ledger) appendHistory(ctx context.Context, id uuid.UUID, ts time.Time, payload map[string]any) error {
	var lastSeq int64
	var lastHash string
	err := l.pool.QueryRow(ctx, `
		SELECT seq, event_hash FROM ingest_job_history
		WHERE job_id = $1 ORDER BY seq DESC LIMIT 1`, id,
	).Scan(&lastSeq, &lastHash)
	switch {
	case err == pgx.ErrNoRows:
		lastSeq, lastHash = 0, GenesisHash
	case err != nil:
		return fmt.Errorf("ledger: read last history entry: %w", err)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ledger: marshal history payload: %w", err)
	}

	seq := lastSeq + 1
	eventHash := hashContent(entryContent{Seq: seq, Timestamp: ts, Payload: payloadJSON, PrevHash: lastHash})

	_, err = l.pool.Exec(ctx, `
		INSERT INTO ingest_job_history (job_id, seq, ts, payload, prev_hash, event_hash)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, seq, ts, payloadJSON, lastHash, eventHash,
	)
	if err != nil {
		return fmt.Errorf("ledger: insert history entry: %w", err)
	}
	return nil
}

// GetJob fetches a single job by ID.
func (l *Ledger) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	var j Job
	var status, errMsg *string
	err := l.pool.QueryRow(ctx, `
		SELECT job_id, input_path, db_path, status, error_message, dut_count, wafer_count, created_at, updated_at
		FROM ingest_jobs WHERE job_id = $1`, id,
	).Scan(&j.ID, &j.InputPath, &j.DBPath, &status, &errMsg, &j.DutCount, &j.WaferCount, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("ledger: get job %s: %w", id, err)
	}
	if status != nil {
		j.Status = Status(*status)
	}
	if errMsg != nil {
		j.ErrorMessage = *errMsg
	}
	return &j, nil
}

// ListJobs returns every job, most recently created first.
func (l *Ledger) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT job_id, input_path, db_path, status, error_message, dut_count, wafer_count, created_at, updated_at
		FROM ingest_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ledger: list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var status, errMsg *string
		if err := rows.Scan(&j.ID, &j.InputPath, &j.DBPath, &status, &errMsg, &j.DutCount, &j.WaferCount, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan job: %w", err)
		}
		if status != nil {
			j.Status = Status(*status)
		}
		if errMsg != nil {
			j.ErrorMessage = *errMsg
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// History returns every history entry for id, ordered by seq ascending,
// verifying the hash chain as it reads — a tampered or truncated chain
// returns an error instead of a silently incomplete slice, the same
// guarantee internal/audit.Open gives a local log file on restart.
func (l *Ledger) History(ctx context.Context, id uuid.UUID) ([]HistoryEntry, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT job_id, seq, ts, payload, prev_hash, event_hash
		FROM ingest_job_history WHERE job_id = $1 ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("ledger: query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	expectedPrev := GenesisHash
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.JobID, &e.Seq, &e.Timestamp, &e.Payload, &e.PrevHash, &e.EventHash); err != nil {
			return nil, fmt.Errorf("ledger: scan history entry: %w", err)
		}
		if e.PrevHash != expectedPrev {
			return nil, fmt.Errorf("ledger: chain break at seq %d for job %s: expected prev_hash %q, got %q",
				e.Seq, id, expectedPrev, e.PrevHash)
		}
		computed := hashContent(entryContent{Seq: e.Seq, Timestamp: e.Timestamp, Payload: e.Payload, PrevHash: e.PrevHash})
		if computed != e.EventHash {
			return nil, fmt.Errorf("ledger: hash mismatch at seq %d for job %s: stored %q, computed %q",
				e.Seq, id, e.EventHash, computed)
		}
		expectedPrev = e.EventHash
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
