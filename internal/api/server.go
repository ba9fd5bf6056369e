// Package api serves the snapshot feed, history windows and static info
// over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"

	"github.com/Dicklesworthstone/sysmon/internal/history"
	"github.com/Dicklesworthstone/sysmon/internal/logger"
	"github.com/Dicklesworthstone/sysmon/internal/model"
	"github.com/Dicklesworthstone/sysmon/internal/poll"
	"github.com/Dicklesworthstone/sysmon/internal/publish"
)

// InfoSource yields the machine description.
type InfoSource interface {
	StaticInfo(ctx context.Context) (model.StaticInfo, error)
}

// Terminator ends a process by pid.
type Terminator interface {
	Terminate(ctx context.Context, pid int32) (bool, error)
}

// SessionStatus is the part of a poll session the health check reports.
type SessionStatus interface {
	ID() string
	State() poll.State
	Stats() poll.Stats
}

// Deps are the collaborators behind the routes. History, Info, Terminator
// and Session may be nil; their routes then answer 503.
type Deps struct {
	Broker     *publish.Broker
	History    *history.Tracker
	Info       InfoSource
	Terminator Terminator
	Session    SessionStatus
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func NewServer(addr string, deps Deps, l *slog.Logger) *Server {
	l = logger.OrDiscard(l)
	h := &handler{deps: deps, logger: l}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httplog.RequestLogger(l, &httplog.Options{
		Level:             slog.LevelDebug,
		Schema:            httplog.SchemaECS.Concise(true),
		LogRequestHeaders: []string{},
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/static", h.static)
		r.Get("/snapshot", h.snapshot)
		r.Get("/history", h.history)
		r.Get("/stream", h.stream)
		r.Post("/processes/{pid}/terminate", h.terminate)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: l,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Serve accepts connections on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("starting HTTP server", "addr", lis.Addr().String())
	err := s.httpServer.Serve(lis)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("HTTP server error", "err", err)
		return err
	}
	return nil
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.logger.Error("HTTP server shutdown error", "err", err)
	}
	return err
}
