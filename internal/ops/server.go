// Package ops exposes the operational HTTP surface: liveness and
// Prometheus metrics. It is not a data API.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/coinoracle/pricecore/internal/metrics"
	"github.com/coinoracle/pricecore/internal/stream"
)

// HealthReporter supplies per-venue connection health for /healthz.
type HealthReporter interface {
	Health() []stream.VenueHealth
}

// Server is the ops listener.
type Server struct {
	server   *http.Server
	reporter HealthReporter
	startAt  time.Time
}

type healthResponse struct {
	Status    string               `json:"status"`
	UptimeSec int64                `json:"uptime_sec"`
	Venues    []stream.VenueHealth `json:"venues,omitempty"`
}

// NewServer builds the ops listener. reporter may be nil when no
// stream venues are configured.
func NewServer(addr string, reg *metrics.Registry, reporter HealthReporter) *Server {
	s := &Server{
		reporter: reporter,
		startAt:  time.Now(),
	}

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if reg != nil {
		router.Handle("/metrics", promhttp.HandlerFor(reg.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start blocks until the listener stops. http.ErrServerClosed is
// filtered so a clean shutdown returns nil.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("ops listener starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		UptimeSec: int64(time.Since(s.startAt).Seconds()),
	}
	if s.reporter != nil {
		resp.Venues = s.reporter.Health()
		for _, v := range resp.Venues {
			if v.State == stream.StateReconnecting {
				resp.Status = "degraded"
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("encode health response")
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("ops request")
	})
}
