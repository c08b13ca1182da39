// Package server exposes the client's operational endpoints: Prometheus
// metrics and a health check over the session store.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Server serves /metrics, /health and /ping until its context ends.
type Server struct {
	srv      *http.Server
	handlers *Handlers
}

// New builds a server listening on addr. A nil pinger reports a local session
// store with nothing to ping.
func New(addr string, pinger Pinger) *Server {
	h := &Handlers{Store: pinger}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/ping", h.Ping)
	mux.Handle("/", http.NotFoundHandler())

	return &Server{
		srv:      &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		handlers: h,
	}
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run listens until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Ops server starting on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
