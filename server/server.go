// Package server implements the Taskmaster HTTP server, REST API, auth, and SSE real-time events.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/GoCodeAlone/taskmaster/comms"
	"github.com/GoCodeAlone/taskmaster/config"
	"github.com/GoCodeAlone/taskmaster/internal/logging"
	"github.com/GoCodeAlone/taskmaster/server/api"
	"github.com/GoCodeAlone/taskmaster/server/ws"
)

// Server is the Taskmaster HTTP server.
type Server struct {
	cfg     config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	backend  api.Backend
	hub      *ws.Hub
	handlers *api.Handlers
	detach   func()

	routesOnce sync.Once

	// JWT secret caching
	secretOnce      sync.Once
	generatedSecret string

	startTime time.Time
	version   string
}

// New creates a Server over backend. Events published on bus are pushed to
// SSE clients; bus may be nil.
func New(cfg config.Config, backend api.Backend, bus comms.Bus, ver string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    logger,
		backend:   backend,
		hub:       ws.NewHub(logger),
		startTime: time.Now(),
		version:   ver,
	}
	if bus != nil {
		s.detach = s.hub.Attach(bus)
	}
	return s
}

// Handler returns the root handler with all routes registered.
func (s *Server) Handler() http.Handler {
	s.routesOnce.Do(s.registerRoutes)
	return s.mux
}

// Start registers routes and begins listening.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":9090"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening",
		slog.String("addr", addr),
		slog.Bool("auth", s.cfg.Auth.Enabled()))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.detach != nil {
		s.detach()
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	h := &api.Handlers{
		Backend: s.backend,
		Logger:  s.logger,
		Version: s.version,
		StartAt: s.startTime,
	}
	s.handlers = h

	// Public routes (no auth required)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/health", h.HealthHandler())
	s.mux.HandleFunc("GET /api/status", h.StatusHandler())

	// SSE checks its token inline; EventSource cannot set headers
	s.mux.HandleFunc("GET /events", s.handleSSE)

	// Protected API, wrapped in auth middleware
	apiMux := http.NewServeMux()
	h.RegisterRoutes(apiMux)
	apiMux.HandleFunc("GET /api/auth/me", s.handleMe)

	s.mux.Handle("/api/", s.logRequests(s.authMiddleware(apiMux)))
}

// logRequests logs each API request at debug level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("took", time.Since(start)))
	})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// handleSSE streams bus events. With auth enabled the token travels in the
// query string since EventSource can't set headers.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Auth.Enabled() {
		if _, err := verifyJWT(s.jwtSecret(), r.URL.Query().Get("token")); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	s.hub.ServeSSE(w, r)
}
