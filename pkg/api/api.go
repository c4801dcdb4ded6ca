// Package api exposes the JSON HTTP surface: public board/thread reads,
// rate-gated writes and key-gated admin moderation.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"anonboard/pkg/bbs"
	"anonboard/pkg/ingest"
	"anonboard/pkg/logger"
	"anonboard/pkg/moderation"
	"anonboard/pkg/ratelimit"
	"anonboard/pkg/store"
	"anonboard/pkg/utils"
)

// Server holds the wired application pieces behind the routes.
type Server struct {
	svc       *bbs.Service
	mod       *moderation.Coordinator
	ingester  *ingest.Runner
	pool      *ratelimit.Pool
	adminKeys map[string]bool
	// genTimeout bounds the synchronous /v1/generate path.
	genTimeout time.Duration
}

// Params collects the server dependencies. Ingester and Pool may be nil.
type Params struct {
	Service    *bbs.Service
	Moderation *moderation.Coordinator
	Ingester   *ingest.Runner
	Pool       *ratelimit.Pool
	AdminKeys  []string
	GenTimeout time.Duration
}

func NewServer(p Params) *Server {
	keys := make(map[string]bool, len(p.AdminKeys))
	for _, k := range p.AdminKeys {
		if k != "" {
			keys[k] = true
		}
	}
	if p.GenTimeout <= 0 {
		p.GenTimeout = 2 * time.Minute
	}
	return &Server{
		svc:        p.Service,
		mod:        p.Moderation,
		ingester:   p.Ingester,
		pool:       p.Pool,
		adminKeys:  keys,
		genTimeout: p.GenTimeout,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.throttle)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/openapi.yaml", s.handleOpenAPI).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/boards", s.handleListBoards).Methods(http.MethodGet)
	v1.HandleFunc("/boards/{id}", s.handleGetBoard).Methods(http.MethodGet)
	v1.HandleFunc("/threads", s.handleCreateThread).Methods(http.MethodPost)
	v1.HandleFunc("/threads/{id}", s.handleGetThread).Methods(http.MethodGet)
	v1.HandleFunc("/threads/{id}/posts", s.handleCreatePost).Methods(http.MethodPost)
	v1.HandleFunc("/archive", s.handleArchive).Methods(http.MethodGet)
	v1.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	v1.HandleFunc("/discover", s.handleDiscover).Methods(http.MethodPost)
	v1.HandleFunc("/reports", s.handleCreateReport).Methods(http.MethodPost)
	v1.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/reports", s.handleAdminListReports).Methods(http.MethodGet)
	admin.HandleFunc("/reports/{id}", s.handleAdminReportStatus).Methods(http.MethodPatch)
	admin.HandleFunc("/posts/{id}", s.handleAdminPostStatus).Methods(http.MethodPatch)
	admin.HandleFunc("/threads/{id}", s.handleAdminThreadStatus).Methods(http.MethodPatch)
	admin.HandleFunc("/boards/{id}", s.handleAdminBoardStatus).Methods(http.MethodPatch)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}

// throttle applies the per-ip token bucket before any handler runs.
func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.pool != nil && !s.pool.Allow(utils.ClientIP(r)) {
			utils.JSONError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin gates a subtree behind X-Admin-Key.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.isAdmin(r) {
			utils.JSONError(w, http.StatusUnauthorized, "admin key required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isAdmin(r *http.Request) bool {
	return s.adminKeys[r.Header.Get("X-Admin-Key")]
}

// writeErr maps domain errors onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bbs.ErrValidation), errors.Is(err, moderation.ErrBadStatus):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ratelimit.ErrRateLimited):
		utils.JSONError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, store.ErrThreadFilled):
		utils.JSONError(w, http.StatusConflict, "thread filled")
	case errors.Is(err, bbs.ErrBoardLocked):
		utils.JSONError(w, http.StatusLocked, "board locked")
	case errors.Is(err, moderation.ErrUnauthorized):
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
	default:
		logger.Error("request_failed", "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "internal error")
	}
}
