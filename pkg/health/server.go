// Package health serves liveness, readiness, runtime status and Prometheus
// metrics over HTTP.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dotsetgreg/dotcommunity/pkg/logger"
)

// Check is one named readiness probe.
type Check func() bool

type Server struct {
	server    *http.Server
	startedAt time.Time

	mu     sync.RWMutex
	checks map[string]Check
	status func() any
}

func NewServer(addr string) *Server {
	s := &Server{
		startedAt: time.Now(),
		checks:    map[string]Check{},
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// AddCheck registers a readiness probe. /ready answers 503 while any probe
// reports false.
func (s *Server) AddCheck(name string, c Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = c
}

// SetStatus sets the source of the /status document.
func (s *Server) SetStatus(fn func() any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = fn
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start blocks until the server stops. It returns http.ErrServerClosed after
// Stop.
func (s *Server) Start() error {
	logger.InfoCF("health", "Health server listening", map[string]any{"addr": s.server.Addr})
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	results := make(map[string]bool, len(s.checks))
	ready := true
	for name, check := range s.checks {
		ok := check()
		results[name] = ok
		ready = ready && ok
	}
	s.mu.RUnlock()

	code, state := http.StatusOK, "ready"
	if !ready {
		code, state = http.StatusServiceUnavailable, "not_ready"
	}
	writeJSON(w, code, map[string]any{"status": state, "checks": results})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	fn := s.status
	s.mu.RUnlock()
	if fn == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "status not available"})
		return
	}
	writeJSON(w, http.StatusOK, fn())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnCF("health", "Write response failed", map[string]any{"error": err.Error()})
	}
}
