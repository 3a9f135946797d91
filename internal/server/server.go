package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/voyagen/channelnav/api"
	"github.com/voyagen/channelnav/internal/cache"
	"github.com/voyagen/channelnav/internal/config"
	"github.com/voyagen/channelnav/internal/navigator"
	"github.com/voyagen/channelnav/internal/store"
)

// Fixed response bodies for the navigation 404s; display clients match on them.
const (
	msgCurrentNotSet   = "Current channel doesn't exist"
	msgPreviousMissing = "Previous channel doesn't exist"
	msgNextMissing     = "Next channel doesn't exist"
)

// Server holds dependencies for the HTTP API.
type Server struct {
	nav   *navigator.Navigator
	store store.Store
	cfg   *config.Config
	rds   *cache.Redis // nil when REDIS_URL is not set
	mux   *http.ServeMux
}

// New creates a Server and registers routes.
// rds may be nil if Redis is not configured.
func New(s store.Store, cfg *config.Config, rds *cache.Redis) *Server {
	srv := &Server{
		nav:   navigator.New(s),
		store: s,
		cfg:   cfg,
		rds:   rds,
		mux:   http.NewServeMux(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	// Channel navigation
	s.mux.HandleFunc("GET /{$}", s.handleListChannels)
	s.mux.HandleFunc("GET /currentChannel", s.handleCurrentChannel)
	s.mux.HandleFunc("GET /previousChannel", s.handleStep(navigator.Previous))
	s.mux.HandleFunc("GET /nextChannel", s.handleStep(navigator.Next))

	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Docs
	s.mux.HandleFunc("GET /api/docs", handleSwaggerUI)
	s.mux.HandleFunc("GET /api/docs/openapi.yaml", handleOpenAPISpec)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Handler returns the server wrapped in its middleware chain.
func (s *Server) Handler() http.Handler {
	return withRequestID(withCORS(withLogging(s)))
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		log.Printf("health: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	resp := map[string]any{"status": "ok"}
	if s.rds != nil {
		running, err := cache.IsLocked(r.Context(), s.rds, cache.ImportLockKey)
		if err != nil {
			log.Printf("health: %v", err)
		} else {
			resp["import_running"] = running
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.nav.ListChannels(r.Context())
	if err != nil {
		writeErr(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleCurrentChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := s.nav.CurrentChannel(r.Context())
	if err != nil {
		s.writeNavErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// handleStep moves the pointer and answers 200 with an empty body.
func (s *Server) handleStep(d navigator.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.nav.Step(r.Context(), d); err != nil {
			s.writeNavErr(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) writeNavErr(w http.ResponseWriter, r *http.Request, err error) {
	var adj *navigator.AdjacentChannelNotFoundError
	switch {
	case errors.Is(err, navigator.ErrCurrentChannelNotSet):
		writeText(w, http.StatusNotFound, msgCurrentNotSet)
	case errors.As(err, &adj):
		if adj.Direction == navigator.Previous {
			writeText(w, http.StatusNotFound, msgPreviousMissing)
		} else {
			writeText(w, http.StatusNotFound, msgNextMissing)
		}
	case errors.Is(err, navigator.ErrConflict):
		writeErr(w, r, http.StatusConflict, err)
	default:
		writeErr(w, r, http.StatusInternalServerError, err)
	}
}

// --- helpers ---

// APIError is the error envelope for non-navigation failures.
type APIError struct {
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: %v", err)
	}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprint(w, msg)
}

func writeErr(w http.ResponseWriter, r *http.Request, status int, err error) {
	id := RequestID(r.Context())
	if status >= 500 {
		log.Printf("ERROR %d [%s]: %v", status, id, err)
	}
	writeJSON(w, status, APIError{
		Status:    status,
		Error:     http.StatusText(status),
		Detail:    err.Error(),
		RequestID: id,
	})
}

// --- docs handlers ---

func handleOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(api.OpenAPISpec)
}

func handleSwaggerUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, swaggerUIHTML)
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>ChannelNav API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
  <style>html{box-sizing:border-box;overflow-y:scroll}*,*:before,*:after{box-sizing:inherit}body{margin:0;background:#fafafa}</style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/api/docs/openapi.yaml",
      dom_id: "#swagger-ui",
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: "BaseLayout",
    });
  </script>
</body>
</html>`
