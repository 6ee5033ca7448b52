// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api is the HTTP control surface of the capture daemon. It starts
// and stops recordings and reports status; captured data never flows
// through it.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/xrcap/internal/api/middleware"
	"github.com/ManuGH/xrcap/internal/health"
	"github.com/ManuGH/xrcap/internal/log"
	"github.com/ManuGH/xrcap/internal/session"
	"github.com/ManuGH/xrcap/internal/verification"
)

// Recorder is the part of the session controller the API drives.
type Recorder interface {
	State() session.State
	Current() (session.Active, bool)
	CaptureRate() float64
	Start(ctx context.Context, name string) (string, error)
	Stop(ctx context.Context) (session.Summary, error)
}

// SessionLister lists finished sessions, newest first.
type SessionLister interface {
	List(ctx context.Context, limit int) ([]session.Summary, error)
}

// Reports looks up verification reports by session name.
type Reports interface {
	Get(sessionName string) (verification.Report, bool)
	Last() (verification.Report, bool)
}

// Config configures the server.
type Config struct {
	ListenAddr      string
	Version         string
	RateLimit       int
	ShutdownTimeout time.Duration
	// TracingService enables otelhttp spans when non-empty.
	TracingService string
}

// Deps are the collaborators of the server. Journal and Reports are optional.
type Deps struct {
	Recorder Recorder
	Journal  SessionLister
	Reports  Reports
	Health   *health.Manager
}

// Server serves the control API.
type Server struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
	router chi.Router
}

// New builds the server and its routes.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Recorder == nil {
		return nil, errors.New("api: recorder is required")
	}
	if deps.Health == nil {
		deps.Health = health.NewManager(cfg.Version)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: log.WithComponent("api"),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,
	})

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIRateLimit(s.cfg.RateLimit))
		r.Get("/status", s.handleStatus)
		r.Get("/recordings", s.handleListRecordings)
		r.Post("/recordings", s.handleStartRecording)
		r.Post("/recordings/stop", s.handleStopRecording)
		r.Get("/recordings/{name}/verification", s.handleGetVerification)
	})
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("event", "api.listening").
			Str("addr", ln.Addr().String()).
			Msg("control API listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info().Str("event", "api.shutdown").Msg("shutting down control API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
