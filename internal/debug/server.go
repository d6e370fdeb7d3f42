// Package debug exposes the agent's local observability surface: health
// probes, Prometheus metrics, and a snapshot of the delivery queue. It binds
// to localhost by default and is disabled entirely when no address is
// configured.
package debug

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vigil/internal/uploader"
)

// Server serves the debug endpoints.
type Server struct {
	addr   string
	queue  *uploader.Queue
	logger *log.Logger
}

// NewServer constructs a Server listening on addr (e.g. "127.0.0.1:9090").
func NewServer(addr string, queue *uploader.Queue, logger *log.Logger) *Server {
	return &Server{addr: addr, queue: queue, logger: logger}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/queuez", s.handleQueue)

	server := &http.Server{
		Addr:    s.addr,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("WARN debug server shutdown error: %v", err)
		}
	}()

	s.logger.Printf("INFO debug endpoints listening on %s", s.addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	payload := struct {
		Depth   int      `json:"depth"`
		Pending []string `json:"pending"`
	}{
		Depth:   s.queue.Len(),
		Pending: s.queue.Paths(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("WARN encode queue snapshot: %v", err)
	}
}
