package api

import (
	"clientreg/internal/metrics"
	"clientreg/internal/registry"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

const shutdownTimeout = 15 * time.Second

type ServerOptions struct {
	Port          int
	DrainDuration time.Duration
	// Metrics serves /metrics from this registry when set.
	Metrics *prometheus.Registry
}

// Server exposes the client API plus health, readiness and drain endpoints.
type Server struct {
	opts    ServerOptions
	handler *Handler
	isReady atomic.Bool
	srv     *http.Server
}

func NewServer(opts ServerOptions, svc *registry.Service) *Server {
	s := &Server{
		opts:    opts,
		handler: NewHandler(svc),
	}
	s.isReady.Store(true)
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Router() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(requestIDMiddleware)
	mux.Use(accessLogMiddleware)

	s.handler.Routes(mux)

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Get("/readyz", s.handleReadiness)
	mux.Get("/drain", s.handleDrain)
	mux.Get("/undrain", s.handleUndrain)
	if s.opts.Metrics != nil {
		mux.Handle("/metrics", metrics.Handler(s.opts.Metrics))
	}
	return mux
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !s.isReady.Load() {
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !s.isReady.Swap(false) {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "already draining"})
		return
	}
	log.Info("server marked as not ready")
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "draining"})
}

func (s *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if s.isReady.Swap(true) {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "already ready"})
		return
	}
	log.Info("server marked as ready")
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// shutdown marks the server not ready, waits for the drain period so load balancers notice,
// then stops accepting connections and lets in-flight requests finish.
func (s *Server) shutdown() error {
	if s.isReady.Swap(false) && s.opts.DrainDuration > 0 {
		log.WithField("drain", s.opts.DrainDuration).Info("draining before shutdown")
		time.Sleep(s.opts.DrainDuration)
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// RunServerInterruptible runs the server in the background in a Go routine and immediately returns a chan to
// the caller. The caller can then send a signal to the chan to gracefully shutdown the server.
// It's up to the caller to wait for in the main Go routine to keep the server running.
func RunServerInterruptible(opts ServerOptions, svc *registry.Service) (stop chan<- struct{}, done <-chan error) {
	s := NewServer(opts, svc)

	stopCh := make(chan struct{})
	doneCh := make(chan error, 1)

	go func() {
		log.Printf("clientreg listening on %s\n", s.srv.Addr)
		err := s.srv.ListenAndServe()
		// http.ErrServerClosed is returned on Shutdown; treat that as clean exit
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			doneCh <- err
			return
		}
		doneCh <- nil
	}()

	go func() {
		<-stopCh
		if err := s.shutdown(); err != nil {
			log.WithError(err).Error("graceful shutdown failed")
		}
	}()
	return stopCh, doneCh
}
