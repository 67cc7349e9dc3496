// Package api is drilld's HTTP surface: level listing, run
// submission, trace retrieval, and a websocket stream for watching a
// run tick by tick.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/codeofpride/drillcore/internal/config"
	"github.com/codeofpride/drillcore/internal/level"
	"github.com/codeofpride/drillcore/internal/store"
)

// Version reported by /version and stamped into logs.
const Version = "0.4.0"

// Server handles HTTP requests.
type Server struct {
	logger *log.Logger
	pack   *level.Pack
	db     *store.Store
	cfg    config.Config
}

// NewServer creates the API server.
func NewServer(logger *log.Logger, pack *level.Pack, db *store.Store, cfg config.Config) *Server {
	return &Server{logger: logger, pack: pack, db: db, cfg: cfg}
}

// Routes sets up the HTTP routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Heartbeat("/health"))

	r.Get("/version", s.handleVersion)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/levels", s.handleListLevels)
		r.Get("/levels/{id}", s.handleGetLevel)
		r.Post("/runs", s.handleCreateRun)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/trace", s.handleGetTrace)
		r.Get("/runs/watch", s.handleWatch)
	})

	return r
}

// requestLogger logs request starts and completions. Script bodies
// never appear in logs, only their content hash.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Printf(
			"request_completed method=%s path=%s status=%d duration=%v request_id=%s bytes_written=%d version=%s",
			r.Method, r.URL.Path, ww.Status(), time.Since(start), requestID, ww.BytesWritten(), Version,
		)
	})
}

// recoverer converts handler panics into structured 500s. Script
// execution itself never panics; this guards the HTTP plumbing.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Printf("panic_recovered path=%s request_id=%s panic=%v",
					r.URL.Path, middleware.GetReqID(r.Context()), rec)
				s.writeError(w, r, http.StatusInternalServerError, ErrTypeInternal, "internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_encode_failed error=%v", err)
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}
