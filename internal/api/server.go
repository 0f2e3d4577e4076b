package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/courier/internal/auth"
	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/session"
)

// SessionRegistry is the view of a session.Connection the API needs.
type SessionRegistry interface {
	Sessions() []*session.Session
	Session(id string) (*session.Session, error)
}

// EventSource is the view of an events.Hub the API needs.
type EventSource interface {
	Since(lastID int64) []events.Event
	Subscribe() (<-chan events.Event, func())
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the admin bearer token, granted every scope.
	APIKey string
	// Tokens are additional bearer tokens limited to their scopes.
	Tokens []auth.TokenConfig
	// MaxBodyBytes caps message submissions. Defaults to 1 MiB.
	MaxBodyBytes int64
}

// Server is the admin HTTP API.
type Server struct {
	config    Config
	sessions  SessionRegistry
	events    EventSource
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

func New(config Config, sessions SessionRegistry, events EventSource, logger *slog.Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}
	return &Server{
		config:    config,
		sessions:  sessions,
		events:    events,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		read := s.requireScopes(auth.ScopeSessionsRO)
		write := s.requireScopes(auth.ScopeSessionsRW)

		r.With(read).Get("/sessions", s.handleListSessions)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.With(read).Get("/", s.handleGetSession)
			r.With(write).Post("/messages", s.handlePostMessage)
			r.With(write).Post("/start", s.handleStart)
			r.With(write).Post("/stop", s.handleStop)
			r.With(write).Post("/recover", s.handleRecover)
		})
		r.With(s.requireScopes(auth.ScopeEventsRO)).Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
