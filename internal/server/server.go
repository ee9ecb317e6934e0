// Package server exposes health, readiness and Prometheus metrics over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"github.com/sirupsen/logrus"
)

// StatusResponse is the body of the health and readiness endpoints.
type StatusResponse struct {
	Status string `json:"status"`
	Topic  string `json:"topic,omitempty"`
}

// Readiness flips once the export topic is provisioned.
type Readiness struct {
	topic atomic.Pointer[string]
}

// MarkReady records the provisioned topic.
func (r *Readiness) MarkReady(topic string) {
	r.topic.Store(&topic)
}

// Topic returns the provisioned topic and whether provisioning finished.
func (r *Readiness) Topic() (string, bool) {
	t := r.topic.Load()
	if t == nil {
		return "", false
	}
	return *t, true
}

// NewRouter creates the ops router.
func NewRouter(readiness *Readiness) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		topic, ready := readiness.Topic()
		if !ready {
			writeJSON(w, http.StatusServiceUnavailable, StatusResponse{Status: "provisioning"})
			return
		}
		writeJSON(w, http.StatusOK, StatusResponse{Status: "ready", Topic: topic})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Server runs the ops router until its context ends.
type Server struct {
	http   *http.Server
	logger logrus.FieldLogger
}

// New creates a server listening on addr.
func New(addr string, readiness *Readiness, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(readiness),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.http.Addr).Info("Ops server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
