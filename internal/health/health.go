// Package health provides a simple HTTP health check endpoint.
//
// Docker and Kubernetes use these endpoints to monitor the daemon's
// liveness. /healthz returns 200 once the daemon is ready; /readyz also
// reports what the assistant is doing.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Server is a lightweight HTTP server that exposes /healthz and /readyz.
type Server struct {
	port   int
	ready  atomic.Bool
	status func() string
	server *http.Server
}

// New creates a new health check server. status, when non-nil, supplies the
// assistant state included in /readyz responses.
func New(port int, status func() string) *Server {
	return &Server{port: port, status: status}
}

// SetReady marks the daemon as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handler returns the health routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		s.write(w, nil)
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		extra := map[string]string{}
		if s.status != nil {
			extra["assistant"] = s.status()
		}
		s.write(w, extra)
	})
	return mux
}

func (s *Server) write(w http.ResponseWriter, extra map[string]string) {
	body := map[string]string{"status": "ok"}
	code := http.StatusOK
	if !s.ready.Load() {
		body["status"] = "not_ready"
		code = http.StatusServiceUnavailable
	}
	for k, v := range extra {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// ListenAndServe starts the health check HTTP server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server listening", "port", s.port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
