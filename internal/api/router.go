// Package api serves the prospector CRM over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/servio-ai/prospector-cli/internal/crm"
	"github.com/servio-ai/prospector-cli/internal/outreach"
	"github.com/servio-ai/prospector-cli/internal/store"
)

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Handlers holds the dependencies of the HTTP handlers.
type Handlers struct {
	svc     *crm.Service
	drafter *outreach.Drafter
	log     *zap.Logger
}

// NewRouter builds the chi router for the CRM API. drafter may be nil, in
// which case the draft endpoint answers 503.
func NewRouter(svc *crm.Service, drafter *outreach.Drafter, opts Options) chi.Router {
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h := &Handlers{svc: svc, drafter: drafter, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	r.Route("/leads", func(r chi.Router) {
		r.Get("/", h.ListLeads)
		r.Post("/", h.CreateLead)
		r.Post("/search", h.SearchLeads)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetLead)
			r.Post("/stage", h.MoveStage)
			r.Post("/activities", h.LogActivity)
			r.Get("/draft", h.Draft)
		})
	})

	r.Get("/board", h.Board)
	r.Get("/dashboard", h.Dashboard)

	r.Route("/filters", func(r chi.Router) {
		r.Get("/", h.ListFilters)
		r.Post("/", h.SaveFilter)
		r.Get("/{id}/run", h.RunFilter)
	})

	r.Post("/score", h.Score)

	return r
}

// requestLogger logs one structured line per request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps store and service errors to HTTP statuses.
func (h *Handlers) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	h.log.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	respondError(w, http.StatusInternalServerError, "internal error")
}
