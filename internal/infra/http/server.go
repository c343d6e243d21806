package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tg-relay-bot/internal/domain"
)

// Health отдаёт состояние воркера внешним наблюдателям.
type Health struct {
	ListenerConnected func() bool
	QueueDepths       func() (domain.QueueDepths, error)
	CachePing         func(ctx context.Context) error
	LastCleanup       func() *domain.CleanupResult
}

// Server оборачивает chi.Router с базовыми middlewares.
type Server struct {
	Router chi.Router
	srv    *http.Server
	log    zerolog.Logger
}

// NewServer создаёт HTTP сервер с /healthz и /metrics.
func NewServer(logger zerolog.Logger, health Health) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		connected := health.ListenerConnected != nil && health.ListenerConnected()
		if !connected {
			status = "degraded"
		}
		payload := map[string]any{
			"status":             status,
			"listener_connected": connected,
		}
		if health.QueueDepths != nil {
			if depths, err := health.QueueDepths(); err == nil {
				payload["queues"] = depths
			} else {
				payload["queues_error"] = err.Error()
				status = "degraded"
				payload["status"] = status
			}
		}
		if health.CachePing != nil {
			// Кэш дедупликации fail-open, его недоступность не деградирует
			// сервис, но видна наблюдателям.
			if err := health.CachePing(r.Context()); err == nil {
				payload["dedup_cache"] = "ok"
			} else {
				payload["dedup_cache"] = err.Error()
			}
		}
		if health.LastCleanup != nil {
			if result := health.LastCleanup(); result != nil {
				payload["last_cleanup"] = result
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(payload)
	})
	return &Server{Router: r, log: logger}
}

// Start запускает http.Server.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("HTTP сервер запущен")
	return s.srv.ListenAndServe()
}

// Shutdown корректно завершает работу сервера.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
