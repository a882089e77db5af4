// Package web exposes ETL runs over HTTP.
package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/TaxiETL/internal/config"
	"github.com/JonMunkholm/TaxiETL/internal/core"
	weblog "github.com/JonMunkholm/TaxiETL/internal/web/middleware"
)

// Runner is the part of core.Service the HTTP layer drives.
type Runner interface {
	RunReader(ctx context.Context, name string, r io.Reader, duplicatesPath string) (*core.RunResult, error)
	CountTrips(ctx context.Context) (int64, error)
	Limiter() *core.RunLimiter
}

// Server is the HTTP trigger for ETL runs.
type Server struct {
	runner         Runner
	cfg            config.ServerConfig
	duplicatesPath string
	router         *chi.Mux
	server         *http.Server
}

// NewServer creates a Server. Uploaded runs write their duplicates to
// duplicatesPath.
func NewServer(runner Runner, cfg config.ServerConfig, duplicatesPath string) *Server {
	s := &Server{
		runner:         runner,
		cfg:            cfg,
		duplicatesPath: duplicatesPath,
		router:         chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(weblog.Logger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/runs", s.handleRun)
		r.Get("/runs/status", s.handleRunStatus)
		r.Get("/trips/count", s.handleCount)
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
