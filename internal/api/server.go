package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/deckcheck/internal/config"
	"github.com/dgallion1/deckcheck/internal/inference"
	"github.com/dgallion1/deckcheck/internal/pathstore"
	"github.com/dgallion1/deckcheck/internal/pipeline"
)

// Archive is the read side of the run archive.
type Archive interface {
	Runs(ctx context.Context, contentHash string) ([]pathstore.Node, error)
	Run(ctx context.Context, contentHash, runID string) (*pathstore.Node, error)
	Forget(ctx context.Context, contentHash string) error
}

// Server is the HTTP API server for deckcheck.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	archive      Archive
	stats        *inference.LLMStats
	provider     string
	model        string
	log          *slog.Logger
	cfg          config.Config
}

// Deps are the collaborators the server exposes. Archive and Stats may be
// nil.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Archive      Archive
	Stats        *inference.LLMStats
	Model        string
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		orchestrator: deps.Orchestrator,
		archive:      deps.Archive,
		stats:        deps.Stats,
		provider:     cfg.Provider,
		model:        deps.Model,
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

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/analyze", s.handleAnalyze)
		r.Get("/api/analyze/{jobID}", s.handleJobStatus)
		r.Get("/api/analyze/{jobID}/report", s.handleJobReport)
		r.Get("/api/stats/llm", s.handleLLMStats)

		r.Get("/api/reports/{hash}", s.handleListRuns)
		r.Get("/api/reports/{hash}/{runID}", s.handleGetRun)
		r.Delete("/api/reports/{hash}", s.handleForgetRuns)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"provider":    s.provider,
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
