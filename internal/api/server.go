package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/docmap/internal/config"
	"github.com/dgallion1/docmap/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the HTTP API server for docmap.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, log *slog.Logger, cfg config.Config) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		orchestrator: orch,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/analyze", s.handleAnalyze)
		r.Post("/api/analyze/batch", s.handleBatchAnalyze)
		r.Get("/api/analyze/{jobID}/status", s.handleAnalyzeStatus)
		r.Get("/api/stats", s.handleStats)

		r.Post("/api/maps", s.handleCreateMap)
		r.Get("/api/maps", s.handleListMaps)
		r.Route("/api/maps/{mapID}", func(r chi.Router) {
			r.Get("/", s.handleGetMap)
			r.Delete("/", s.handleDeleteMap)
			r.Get("/topics/{topicID}", s.handleGetTopic)
			r.Get("/topics/{topicID}/children", s.handleChildren)
			r.Get("/topics/{topicID}/references", s.handleReferences)
			r.Get("/path", s.handlePath)
			r.Get("/anomalies", s.handleAnomalies)
			r.Get("/anomalies.csv", s.handleAnomalyCSV)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
