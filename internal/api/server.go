package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
	"github.com/roman-kulish/spectrum-streamer/internal/storage"
	"github.com/roman-kulish/spectrum-streamer/internal/sweep"
)

// Controller is the part of the engine the API drives
type Controller interface {
	StartCycle(ctx context.Context, config sweep.CycleConfig) error
	RestartCycle(ctx context.Context, config sweep.CycleConfig) error
	StopSweep(ctx context.Context) error
	Status() sdr.Status
	LastCycle() (sweep.CycleInfo, bool)
	Replay() []*sdr.Sample
	Device() string
	Dropped() uint64
}

// WithLogger sets the logger for the server
func WithLogger(logger *slog.Logger) func(s *Server) {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithJournal enables the /api/cycles endpoints
func WithJournal(store storage.Store) func(s *Server) {
	return func(s *Server) {
		s.journal = store
	}
}

// WithFeed mounts the event feed at /api/ws
func WithFeed(h http.Handler) func(s *Server) {
	return func(s *Server) {
		s.feed = h
	}
}

// WithRegistry serves metrics gathered from reg at /metrics and records
// HTTP request metrics into it
func WithRegistry(reg *prometheus.Registry) func(s *Server) {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithAllowedOrigins sets the CORS allowed origins. All origins are allowed by default.
func WithAllowedOrigins(origins ...string) func(s *Server) {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// Server is the HTTP control API of the sweep engine
type Server struct {
	router *chi.Mux
	engine Controller
	logger *slog.Logger

	journal        storage.Store
	feed           http.Handler
	registry       *prometheus.Registry
	allowedOrigins []string
}

// NewServer creates a new Server
func NewServer(engine Controller, options ...func(s *Server)) *Server {
	s := Server{
		router:         chi.NewRouter(),
		engine:         engine,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		allowedOrigins: []string{"*"},
	}

	for _, option := range options {
		option(&s)
	}

	s.routes()
	return &s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	if s.registry != nil {
		s.router.Use(newHTTPMetrics(s.registry).middleware)
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if s.registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/cycle", s.handleStartCycle)
		r.Put("/cycle", s.handleRestartCycle)
		r.Delete("/cycle", s.handleStopSweep)
		r.Get("/status", s.handleStatus)
		r.Get("/samples", s.handleSamples)

		if s.feed != nil {
			r.Handle("/ws", s.feed)
		}

		if s.journal != nil {
			r.Get("/cycles", s.handleListCycles)
			r.Get("/cycles/{id}", s.handleGetCycle)
			r.Get("/cycles/{id}/journal", s.handleGetJournal)
		}
	})
}
