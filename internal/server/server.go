package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ziadkadry99/foliocache/internal/logging"
	"github.com/ziadkadry99/foliocache/internal/worker"
)

// Prefix is where foliocache's own routes live; everything else belongs to
// the proxied site.
const Prefix = "/_foliocache"

// Config holds server configuration.
type Config struct {
	Port     int
	AllowAll bool // allow all CORS origins on the internal API (dev mode)
}

// Server is the foliocache HTTP front end.
type Server struct {
	cfg        Config
	reg        *worker.Registration
	logger     *slog.Logger
	router     chi.Router
	internal   chi.Router
	httpServer *http.Server
}

// New creates a server reporting on reg.
func New(cfg Config, reg *worker.Registration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Server{
		cfg:    cfg,
		reg:    reg,
		logger: logger,
	}

	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check
	r.Get("/healthz", s.handleHealth)

	// CORS
	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	s.internal = chi.NewRouter()
	s.internal.Use(cors.Handler(corsOpts))
	r.Mount(Prefix, s.internal)

	return r
}

// Internal returns the router mounted at Prefix. CORS applies to every
// route on it. Route patterns are relative to Prefix.
func (s *Server) Internal() chi.Router { return s.internal }

// API returns the internal router with a request timeout applied, for
// short JSON and HTML endpoints.
func (s *Server) API() chi.Router {
	return s.internal.With(middleware.Timeout(60 * time.Second))
}

// Router returns the root chi router.
func (s *Server) Router() chi.Router { return s.router }

// Site installs the handler for every path not claimed by another route.
func (s *Server) Site(h http.Handler) {
	s.router.Handle("/*", h)
}

type workerHealth struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Cache string `json:"cache"`
	Busy  bool   `json:"busy"`
}

type health struct {
	Status  string        `json:"status"`
	Worker  *workerHealth `json:"worker,omitempty"`
	Waiting bool          `json:"waiting"`
	Clients int           `json:"clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := health{Status: "ok"}
	if s.reg != nil {
		if active := s.reg.Active(); active != nil {
			h.Worker = &workerHealth{
				ID:    active.ID(),
				State: active.State().String(),
				Cache: active.CacheName(),
				Busy:  active.Busy(),
			}
		}
		h.Waiting = s.reg.Waiting() != nil
		h.Clients = len(s.reg.Clients())
	}
	writeJSON(w, http.StatusOK, h)
}

// Start begins listening on the configured port.
func (s *Server) Start() error {
	s.logger.Info("foliocache listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
