// Package http provides the HTTP transport layer for EpochSim.
//
// Routes:
//
//	GET    /health
//	GET    /algorithms
//	POST   /sessions
//	GET    /sessions
//	GET    /sessions/{id}
//	DELETE /sessions/{id}
//	POST   /sessions/{id}/tick?n=
//	POST   /sessions/{id}/back?n=
//	POST   /sessions/{id}/play
//	POST   /sessions/{id}/pause
//	POST   /sessions/{id}/processes
//	DELETE /sessions/{id}/processes/{pid}
//	GET    /sessions/{id}/ws
//	POST   /scenarios
//	GET    /scenarios
//	GET    /scenarios/{name}
//	DELETE /scenarios/{name}
//	POST   /scenarios/{name}/sessions
//	GET    /metrics
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/snehjoshi/epochsim/internal/config"
	"github.com/snehjoshi/epochsim/internal/logging"
	"github.com/snehjoshi/epochsim/internal/metrics"
	"github.com/snehjoshi/epochsim/internal/scenario"
	"github.com/snehjoshi/epochsim/internal/session"
	transportws "github.com/snehjoshi/epochsim/internal/transport/websocket"
)

// Server wraps the stdlib HTTP server with EpochSim route wiring.
type Server struct {
	inner *http.Server
}

// Option configures optional server collaborators.
type Option func(*options)

type options struct {
	presets *scenario.Store
	metrics *metrics.Registry
	log     *slog.Logger
}

// WithPresets mounts the /scenarios routes backed by store.
func WithPresets(store *scenario.Store) Option {
	return func(o *options) { o.presets = store }
}

// WithMetrics mounts GET /metrics and counts every request.
func WithMetrics(reg *metrics.Registry) Option {
	return func(o *options) { o.metrics = reg }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// New builds a Server around a session Manager.
// The caller is responsible for calling ListenAndServe / Shutdown.
func New(mgr *session.Manager, cfg *config.Config, opts ...Option) *Server {
	o := options{log: logging.Discard()}
	for _, fn := range opts {
		fn(&o)
	}
	log := o.log.With("component", "http")

	h := &Handler{sessions: mgr, presets: o.presets}
	ws := &transportws.Handler{Sessions: mgr, Log: o.log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware)
	r.Use(MaxBodyMiddleware)
	r.Use(LoggingMiddleware(log, o.metrics))
	r.Use(AuthMiddleware(cfg.Auth.APIKey, cfg.Auth.Enabled))
	r.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))

	r.Get("/health", h.health)
	r.Get("/algorithms", h.listAlgorithms)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.listSessions)
		r.Post("/", h.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.deleteSession)
			r.Post("/tick", h.tick)
			r.Post("/back", h.back)
			r.Post("/play", h.play)
			r.Post("/pause", h.pause)
			r.Post("/processes", h.createProcess)
			r.Delete("/processes/{pid}", h.killProcess)
			r.Method(http.MethodGet, "/ws", ws)
		})
	})

	if o.presets != nil {
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.listScenarios)
			r.Post("/", h.saveScenario)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", h.getScenario)
				r.Delete("/", h.deleteScenario)
				r.Post("/sessions", h.createSessionFromPreset)
			})
		})
	}

	if o.metrics != nil {
		r.Method(http.MethodGet, "/metrics", o.metrics.Handler())
	}

	return &Server{
		inner: &http.Server{
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Handler returns the composed http.Handler (useful for testing).
func (s *Server) Handler() http.Handler { return s.inner.Handler }

// ListenAndServe starts the server on the given address (e.g. ":8080").
// It returns when the server stops or encounters an error.
func (s *Server) ListenAndServe(addr string) error {
	s.inner.Addr = addr
	return s.inner.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting up to ctx's deadline for
// in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
