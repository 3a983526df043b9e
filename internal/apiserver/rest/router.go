package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter returns a configured chi.Router for the ingestion control
// plane.
//
// Route layout:
//
//	GET  /healthz                       – liveness probe, no auth
//	POST /api/v1/jobs                   – submit a job (JWT required)
//	GET  /api/v1/jobs                   – list jobs (JWT required)
//	GET  /api/v1/jobs/{id}              – poll one job (JWT required)
//	POST /api/v1/jobs/{id}/cancel       – cooperative cancel (JWT required)
//	GET  /api/v1/jobs/{id}/progress     – websocket progress stream (JWT required)
//
// jwtSecret enables HS256 Bearer-token validation on every /api/v1
// route when non-empty. Pass "" to disable auth, suitable only for
// local/trusted deployments.
func NewRouter(srv *Server, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		if jwtSecret != "" {
			r.Use(JWTMiddleware(jwtSecret))
		}

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", srv.handleSubmitJob)
			r.Get("/", srv.handleListJobs)
			r.Get("/{id}", srv.handleGetJob)
			r.Post("/{id}/cancel", srv.handleCancelJob)
			r.Get("/{id}/progress", srv.handleJobProgress)
		})
	})

	return r
}
