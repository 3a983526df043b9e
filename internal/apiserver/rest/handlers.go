package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/foundry/stdfingest/internal/apiserver"
	"github.com/foundry/stdfingest/internal/apiserver/ws"
)

// Server holds the dependencies needed by the REST and websocket
// handlers: the job registry is the single source of truth, both
// surfaces are thin views over it.
type Server struct {
	registry *apiserver.Registry
	logger   *slog.Logger
}

// NewServer creates a Server backed by registry.
func NewServer(registry *apiserver.Registry, logger *slog.Logger) *Server {
	return &Server{registry: registry, logger: logger}
}

// handleHealthz responds to GET /healthz with no authentication
// required, for load balancers and orchestrators.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// submitJobRequest is the POST /api/v1/jobs request body.
type submitJobRequest struct {
	InputPath string `json:"input_path"`
	DBPath    string `json:"db_path"`
}

// jobResponse is the JSON view of an apiserver.JobState returned by the
// job endpoints.
type jobResponse struct {
	ID         string `json:"id"`
	InputPath  string `json:"input_path"`
	DBPath     string `json:"db_path"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DutCount   int64  `json:"dut_count"`
	WaferCount int64  `json:"wafer_count"`
}

func toJobResponse(s *apiserver.JobState) jobResponse {
	return jobResponse{
		ID:         s.ID.String(),
		InputPath:  s.InputPath,
		DBPath:     s.DBPath,
		Status:     string(s.Status),
		Error:      s.Error,
		DutCount:   s.DutCount,
		WaferCount: s.WaferCount,
	}
}

// handleSubmitJob responds to POST /api/v1/jobs: it starts a new
// ingestion job against the given input/output paths and returns its
// job ID immediately. The job runs asynchronously; callers poll
// GET /api/v1/jobs/{id} or subscribe to the websocket progress stream.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.InputPath == "" || req.DBPath == "" {
		writeError(w, http.StatusBadRequest, "input_path and db_path are required")
		return
	}

	id, err := s.registry.Submit(req.InputPath, req.DBPath)
	if err != nil {
		s.logger.Error("rest: submit job failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id.String()})
}

// handleGetJob responds to GET /api/v1/jobs/{id}.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	state, ok := s.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(toJobResponse(state))
}

// handleListJobs responds to GET /api/v1/jobs.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	states := s.registry.List()
	out := make([]jobResponse, 0, len(states))
	for _, st := range states {
		out = append(out, toJobResponse(st))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

// handleCancelJob responds to POST /api/v1/jobs/{id}/cancel.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	if _, ok := s.registry.Get(id); !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	s.registry.Cancel(id)
	w.WriteHeader(http.StatusAccepted)
}

// handleJobProgress responds to GET /api/v1/jobs/{id}/progress by
// upgrading the connection to a WebSocket streaming that job's progress
// frames, delegating the handshake and framing to internal/apiserver/ws.
func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	bc, ok := s.registry.Broadcaster(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found or already finished")
		return
	}

	ws.NewHandler(bc, s.logger, 10*time.Second).ServeHTTP(w, r)
}
