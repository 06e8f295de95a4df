package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/balloon-weather-service/internal/domain"
)

const (
	rootMessage     = "Balloon weather service is running! Use /data to get API response."
	fallbackFailure = "Failed to fetch data from APIs"
)

// DataAggregator builds the combined balloon and weather response.
type DataAggregator interface {
	Aggregate(ctx context.Context) (domain.CombinedResponse, error)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the data API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	aggregator DataAggregator
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /data, /, /favicon.ico, /healthz,
// /readyz, and /metrics routes. Every route allows cross-origin GETs from
// any origin. writeTimeout must leave room for the slowest upstream fetch.
func NewServer(addr string, writeTimeout time.Duration, agg DataAggregator, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		aggregator: agg,
		logger:     logger,
	}

	mux.HandleFunc("GET /data", s.handleData)
	mux.HandleFunc("GET /{$}", handleRoot)
	mux.HandleFunc("GET /favicon.ico", handleFavicon)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = s.requestLogger(handler)
	handler = cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})(handler)
	handler = middleware.Recoverer(handler)
	handler = middleware.RequestID(handler)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	resp, err := s.aggregator.Aggregate(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err))
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encode combined response", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": fallbackFailure})
		return
	}

	s.logger.Info("combined data",
		"balloons", len(resp.Balloons),
		"historical_balloons", len(resp.HistoricalBalloons),
		"bytes", len(payload),
	)
	if s.logger.Enabled(r.Context(), slog.LevelDebug) {
		s.logger.Debug("combined data payload", "payload", string(payload))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload) //nolint:errcheck // client may have gone away
}

// errorBody renders an aggregation failure. Only *domain.AggregateError
// messages reach clients; anything else gets the generic message.
func errorBody(err error) map[string]any {
	var aggErr *domain.AggregateError
	if !errors.As(err, &aggErr) {
		return map[string]any{"error": fallbackFailure}
	}
	body := map[string]any{"error": aggErr.Message}
	if aggErr.StatusCode != 0 {
		body["status_code"] = aggErr.StatusCode
	}
	return body
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(rootMessage)) //nolint:errcheck // best-effort liveness text
}

func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
