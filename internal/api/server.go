// Package api exposes health and manual trigger endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/amishk599/jobwatch/internal/pipeline"
)

// Coordinator runs pipeline phases on demand.
type Coordinator interface {
	TriggerDiscovery(ctx context.Context) (pipeline.DiscoveryStats, bool, error)
	TriggerDrain(ctx context.Context) (pipeline.DrainStats, bool, error)
	NextRuns() map[string]time.Time
}

// Pinger reports storage connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves the HTTP control surface.
type Server struct {
	addr    string
	store   Pinger
	coord   Coordinator
	logger  *slog.Logger
	version string
	server  *http.Server

	// background tracks trigger runs started by requests.
	background sync.WaitGroup
}

// NewServer creates a server listening on addr.
func NewServer(addr string, store Pinger, coord Coordinator, version string, logger *slog.Logger) *Server {
	s := &Server{
		addr:    addr,
		store:   store,
		coord:   coord,
		logger:  logger,
		version: version,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/trigger/discovery", s.handleTriggerDiscovery)
	mux.HandleFunc("/trigger/drain", s.handleTriggerDrain)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Run listens and serves until ctx is cancelled, then shuts down gracefully
// and waits for trigger runs started by requests.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.logger.Info("api server listening", "address", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := s.server.Shutdown(shutdownCtx)
	s.background.Wait()
	if shutdownErr != nil {
		return fmt.Errorf("api shutdown: %w", shutdownErr)
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "jobwatch",
		"version": s.version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	next := make(map[string]string)
	for phase, t := range s.coord.NextRuns() {
		next[phase] = t.UTC().Format(time.RFC3339)
	}
	resp["next_runs"] = next

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		resp["status"] = "unhealthy"
		resp["error"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTriggerDiscovery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.runInBackground("discovery", func(ctx context.Context) (any, error) {
		stats, _, err := s.coord.TriggerDiscovery(ctx)
		return stats, err
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "phase": "discovery"})
}

func (s *Server) handleTriggerDrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.runInBackground("drain", func(ctx context.Context) (any, error) {
		stats, _, err := s.coord.TriggerDrain(ctx)
		return stats, err
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "phase": "drain"})
}

// runInBackground starts fn detached from the request. The run outlives the
// response.
func (s *Server) runInBackground(phase string, fn func(context.Context) (any, error)) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		stats, err := fn(context.Background())
		if err != nil {
			s.logger.Error("manual trigger failed", "phase", phase, "error", err)
			return
		}
		s.logger.Info("manual trigger complete", "phase", phase, "stats", stats)
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
