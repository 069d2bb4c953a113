/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes portal sessions over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/receiver_portal/internal/config"
	"github.com/friendsincode/receiver_portal/internal/eventbus"
	"github.com/friendsincode/receiver_portal/internal/events"
	"github.com/friendsincode/receiver_portal/internal/logbuffer"
	"github.com/friendsincode/receiver_portal/internal/media"
	"github.com/friendsincode/receiver_portal/internal/playout"
	"github.com/friendsincode/receiver_portal/internal/telemetry"
	"github.com/friendsincode/receiver_portal/internal/version"
)

// Server bundles the HTTP surface and the session registry.
type Server struct {
	cfg       *config.Config
	exp       config.Experience
	logger    zerolog.Logger
	router    chi.Router
	bus       *events.Bus
	sessions  *playout.Manager
	logBuffer *logbuffer.Buffer
	updates   *version.Checker
	storage   media.Storage
	mediaFS   http.Handler
	exporter  *eventbus.Exporter
	started   time.Time

	httpServer *http.Server

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
	closers  []func() error
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, exp config.Experience, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	if logBuf == nil {
		logBuf = logbuffer.New(cfg.LogBufferSize)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware(telemetry.ServiceName))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(30 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// WebSocket sessions and media streams are long-lived.
			if strings.HasPrefix(r.URL.Path, "/ws/") || strings.HasPrefix(r.URL.Path, media.URLPrefix) {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	bus := events.NewBus()
	opts := playout.OptionsFromConfig(cfg, exp)
	opts.Bus = bus
	opts.Logger = logger

	srv := &Server{
		cfg:       cfg,
		exp:       exp,
		logger:    logger.With().Str("component", "server").Logger(),
		router:    router,
		bus:       bus,
		sessions:  playout.NewManager(opts, cfg.MaxSessions, logger),
		logBuffer: logBuf,
		started:   time.Now(),
	}
	if cfg.UpdateCheck {
		srv.updates = version.NewChecker(logger)
	}
	if err := srv.setupIntegrations(context.Background()); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// WebSocket connections manage their own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; media-src 'self' https: blob:; connect-src 'self' ws: wss:; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request through zerolog.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "http").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ev := logger.Debug()
			if status >= http.StatusInternalServerError {
				ev = logger.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Sessions returns the session registry.
func (s *Server) Sessions() *playout.Manager {
	return s.sessions
}

// Bus returns the event bus sessions publish on.
func (s *Server) Bus() *events.Bus {
	return s.bus
}

// LogBuffer returns the server's log buffer.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// DeferClose registers a cleanup hook run by Close in reverse order.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close stops every session and background worker.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	errs := []error{s.sessions.Shutdown()}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.goBackground(func() { s.heartbeat(ctx) })
	if s.updates != nil {
		s.goBackground(func() { s.updates.Run(ctx) })
	}
	if s.exporter != nil {
		s.goBackground(func() { s.exporter.Run(ctx) })
	}
	if s.storage != nil {
		s.goBackground(func() { s.startupPreflight(ctx) })
	}
}

func (s *Server) goBackground(fn func()) {
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		fn()
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", telemetry.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/timeline", s.handleTimeline)
		r.Get("/assets", s.handleAssets)
		r.Get("/assets/status", s.handleAssetStatus)
		r.Get("/logs", s.handleLogs)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Get("/transitions", s.handleTransitions)
				r.Post("/actions", s.handleAction)
				r.Post("/selection", s.handleSelection)
				r.Post("/access", s.handleAccess)
				r.Post("/audio", s.handleAudio)
				r.Post("/reset", s.handleReset)
				r.Post("/step", s.handleStep)
			})
		})
	})

	s.router.Get("/ws/sessions/{id}", s.handleSessionWS)

	if s.mediaFS != nil {
		s.router.Handle(media.URLPrefix+"*", s.mediaFS)
	}
}
