// Package daemon serves the grading engine over HTTP
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/bootstrap"
	"github.com/eriker75/onenglish-sub004/internal/media"
)

// Version is reported by /v1/status
var Version = "0.1.0"

// Server is the onenglish daemon HTTP server
type Server struct {
	app     *bootstrap.App
	logger  *slog.Logger
	server  *http.Server
	router  *http.ServeMux
	limits  media.Limits
	limiter *submitLimiter
	started time.Time
}

// ServerConfig holds what NewServer needs
type ServerConfig struct {
	App *bootstrap.App

	// MediaLimits caps uploads; zero value uses media.DefaultLimits
	MediaLimits media.Limits
}

// NewServer creates the daemon server around a wired App
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("daemon: nil app")
	}
	limits := cfg.MediaLimits
	if limits == (media.Limits{}) {
		limits = media.DefaultLimits()
	}

	dc := cfg.App.Config.Daemon
	s := &Server{
		app:     cfg.App,
		logger:  cfg.App.Logger,
		router:  http.NewServeMux(),
		limits:  limits,
		limiter: newSubmitLimiter(dc.SubmissionsPerMinute, 3, cfg.App.Logger),
		started: time.Now(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", dc.Bind, dc.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second, // judge calls with audio can be slow
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Handler returns the router wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	return correlationIDMiddleware(recoveryMiddleware(s.logger, loggingMiddleware(s.logger, s.router)))
}

func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)
	s.router.Handle("GET /metrics", s.app.Metrics.Handler())

	// Config
	s.router.HandleFunc("GET /v1/config/providers", s.handleListProviders)

	// Event log
	s.router.HandleFunc("GET /v1/events", s.handleEvents)

	// Questions
	s.router.HandleFunc("GET /v1/question-types", s.handleQuestionTypes)
	s.router.HandleFunc("GET /v1/questions", s.handleListQuestions)
	s.router.HandleFunc("GET /v1/questions/{id...}", s.handleQuestionRoute)
	s.router.HandleFunc("POST /v1/questions/{id...}", s.handleQuestionRoute)
	s.router.HandleFunc("PUT /v1/questions/{id...}", s.handleQuestionRoute)
	s.router.HandleFunc("DELETE /v1/questions/{id...}", s.handleDeleteQuestion)
}

// Start serves until Shutdown
func (s *Server) Start() error {
	s.logger.Info("starting onenglish daemon",
		"addr", s.server.Addr,
		"llm_providers", s.app.LLM.List(),
	)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon...")
	err := s.server.Shutdown(ctx)
	if cerr := s.limiter.close(); cerr != nil {
		s.logger.Warn("close rate limiter", "error", cerr)
	}
	return err
}
