package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/supertask/internal/config"
	"github.com/me/supertask/internal/engine"
)

// DefaultInvokeTimeout bounds how long an invoke request waits for the
// task's callback when the request carries no ?timeout.
const DefaultInvokeTimeout = 30 * time.Second

// Server is the supertask REST API server.
type Server struct {
	router        chi.Router
	logger        *slog.Logger
	config        config.ServerConfig
	startTime     time.Time
	engine        *engine.Engine
	invokeTimeout time.Duration
}

// Option configures optional Server settings.
type Option func(*Server)

// WithInvokeTimeout changes the default wait of the invoke endpoint.
func WithInvokeTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.invokeTimeout = d
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, eng *engine.Engine, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		logger:        logger.With("component", "server"),
		config:        cfg,
		startTime:     time.Now(),
		engine:        eng,
		invokeTimeout: DefaultInvokeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleRegisterTask)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Put("/", s.handleUpdateTask)
				r.Delete("/", s.handleRemoveTask)
				r.Post("/invoke", s.handleInvokeTask)
			})
		})

		r.Get("/engine", s.handleGetEngine)
		r.Put("/engine", s.handleUpdateEngine)
	})
}
