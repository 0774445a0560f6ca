// Package api exposes datasets, journeys and forecasts over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/airgrid/internal/forecast"
	"github.com/sells-group/airgrid/internal/index"
	"github.com/sells-group/airgrid/internal/job"
	"github.com/sells-group/airgrid/internal/metrics"
	"github.com/sells-group/airgrid/internal/store"
	"github.com/sells-group/airgrid/internal/transit"
)

// Deps are the collaborators a Server reads from. Index and Planner are
// required; the rest may be nil.
type Deps struct {
	Index   *index.Index
	Planner *transit.Planner
	Engine  *forecast.Engine
	Jobs    *job.Tracker
	Metrics *metrics.Collector
	Store   store.Store

	// Pollutants are forecast when a request names none.
	Pollutants  []string
	CORSOrigins []string
	// BaseContext parents background forecast jobs so they stop on shutdown.
	BaseContext context.Context
}

// Server is the HTTP adapter.
type Server struct {
	deps   Deps
	router chi.Router
	log    *zap.Logger
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	if deps.Jobs == nil {
		deps.Jobs = job.NewTracker()
	}
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	if len(deps.CORSOrigins) == 0 {
		deps.CORSOrigins = []string{"*"}
	}
	s := &Server{
		deps: deps,
		log:  zap.L().With(zap.String("component", "api.server")),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.deps.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", s.deps.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/lines", s.handleLines)
		r.Get("/stations", s.handleStations)

		r.Group(func(r chi.Router) {
			r.Use(s.requireReady)
			r.Get("/datasets", s.handleListDatasets)
			r.Get("/datasets/stored", s.handleStoredDatasets)
			r.Get("/datasets/{entity}/{year}/{pollutant}", s.handleDataset)
			r.Get("/datasets/{entity}/{year}/{pollutant}/nearest", s.handleNearest)
			r.Get("/datasets/{entity}/{year}/{pollutant}/records", s.handleRecords)
			r.Get("/journey", s.handleJourney)
			r.Post("/forecasts", s.handleStartForecast)
		})

		r.Get("/forecasts", s.handleListForecasts)
		r.Get("/forecasts/{id}", s.handleGetForecast)
	})
	return r
}

// observe records request counts and latency by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.deps.Metrics.ObserveAPIRequest(route, r.Method, strconv.Itoa(status), time.Since(start))
	})
}

// requireReady answers 503 until the first ingestion finishes.
func (s *Server) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.deps.Index.IsReady() {
			w.Header().Set("Retry-After", "5")
			writeError(w, http.StatusServiceUnavailable, "index is still loading")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.deps.Index.IsReady() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "datasets": s.deps.Index.Len()})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}
