// Package apiserver is the job registry that backs cmd/stdfserver: it
// accepts ingestion job submissions, runs each one in its own goroutine
// against internal/ingest.Ingest, records lifecycle transitions in the
// optional internal/ledger, and fans progress out through a per-job
// internal/apiserver/ws.Broadcaster. It plays the same orchestrating role
// the teacher's internal/agent.Agent plays for its watcher/queue/uploader
// trio, generalized from a single long-running agent to many independent,
// concurrently running jobs.
package apiserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/foundry/stdfingest/internal/apiserver/ws"
	"github.com/foundry/stdfingest/internal/ingest"
	"github.com/foundry/stdfingest/internal/ledger"
	"github.com/foundry/stdfingest/internal/progress"
)

// JobState is the in-memory view of one submitted job; it mirrors
// ledger.Job's fields but exists independently so the registry works
// even when the ledger is disabled (empty DSN).
type JobState struct {
	ID         uuid.UUID
	InputPath  string
	DBPath     string
	Status     ledger.Status
	Error      string
	DutCount   int64
	WaferCount int64
}

// Registry tracks every job submitted since process start. It is safe
// for concurrent use.
type Registry struct {
	logger *slog.Logger
	ledger *ledger.Ledger // nil when disabled

	mu      sync.RWMutex
	jobs    map[uuid.UUID]*JobState
	bcs     map[uuid.UUID]*ws.Broadcaster
	cancels map[uuid.UUID]context.CancelFunc
}

// New constructs a Registry. l may be nil, which disables ledger
// persistence: jobs still run and report progress, but history does not
// survive a process restart.
func New(l *ledger.Ledger, logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger,
		ledger:  l,
		jobs:    make(map[uuid.UUID]*JobState),
		bcs:     make(map[uuid.UUID]*ws.Broadcaster),
		cancels: make(map[uuid.UUID]context.CancelFunc),
	}
}

// Submit registers a new job for (inputPath, dbPath) and starts it
// running in a background goroutine. It returns the assigned job ID
// immediately; callers poll Get or subscribe to Broadcaster(id) for
// progress.
func (r *Registry) Submit(inputPath, dbPath string) (uuid.UUID, error) {
	ctx := context.Background()

	var id uuid.UUID
	if r.ledger != nil {
		var err error
		id, err = r.ledger.CreateJob(ctx, inputPath, dbPath)
		if err != nil {
			return uuid.Nil, fmt.Errorf("apiserver: create job: %w", err)
		}
	} else {
		id = uuid.New()
	}

	state := &JobState{ID: id, InputPath: inputPath, DBPath: dbPath, Status: ledger.StatusQueued}
	bc := ws.NewBroadcaster(id.String(), r.logger, 0)

	runCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.jobs[id] = state
	r.bcs[id] = bc
	r.cancels[id] = cancel
	r.mu.Unlock()

	go r.run(runCtx, state, bc)

	return id, nil
}

func (r *Registry) run(ctx context.Context, state *JobState, bc *ws.Broadcaster) {
	r.setStatus(state.ID, ledger.StatusRunning, "", 0, 0)

	result, err := ingest.Ingest(ctx, ingest.Options{
		InputPath:     state.InputPath,
		DBPath:        state.DBPath,
		ProgressSinks: []progress.Sink{bc},
		Logger:        r.logger,
	})

	r.mu.Lock()
	delete(r.cancels, state.ID)
	delete(r.bcs, state.ID)
	r.mu.Unlock()
	bc.Close()

	if err != nil {
		r.setStatus(state.ID, ledger.StatusFailed, err.Error(), result.Summary.DutCount, result.Summary.WaferCount)
		return
	}
	r.setStatus(state.ID, ledger.StatusSucceeded, "", result.Summary.DutCount, result.Summary.WaferCount)
}

func (r *Registry) setStatus(id uuid.UUID, status ledger.Status, errMsg string, dutCount, waferCount int64) {
	r.mu.Lock()
	if s, ok := r.jobs[id]; ok {
		s.Status = status
		s.Error = errMsg
		s.DutCount = dutCount
		s.WaferCount = waferCount
	}
	r.mu.Unlock()

	if r.ledger != nil {
		if err := r.ledger.UpdateStatus(context.Background(), id, status, errMsg, dutCount, waferCount); err != nil {
			r.logger.Error("apiserver: ledger update failed", slog.Any("error", err), slog.String("job_id", id.String()))
		}
	}
}

// Get returns the current in-memory state of a job, or (nil, false) if
// unknown.
func (r *Registry) Get(id uuid.UUID) (*JobState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// List returns every job's current state.
func (r *Registry) List() []*JobState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*JobState, 0, len(r.jobs))
	for _, s := range r.jobs {
		cp := *s
		out = append(out, &cp)
	}
	return out
}

// Cancel requests cooperative termination of a running job (§5). It is a
// no-op if the job is unknown or already finished.
func (r *Registry) Cancel(id uuid.UUID) {
	r.mu.RLock()
	cancel, ok := r.cancels[id]
	r.mu.RUnlock()
	if ok {
		cancel()
	}
}

// Broadcaster returns the progress broadcaster for id, or (nil, false)
// once the job has finished and its broadcaster has been closed.
func (r *Registry) Broadcaster(id uuid.UUID) (*ws.Broadcaster, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bc, ok := r.bcs[id]
	return bc, ok
}
