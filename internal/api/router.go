// Package api exposes routes, arrivals, preferences and live countdowns
// over HTTP and WebSocket.
package api

import (
	"log/slog"
	"net/http"

	"nextbus/internal/clock"
	"nextbus/internal/countdown"
	"nextbus/internal/metrics"
)

type Deps struct {
	Repo           RouteRepository
	Manager        *countdown.Manager
	Prefs          PrefsStore
	DefaultSession *countdown.Session
	Clock          clock.Clock
	Metrics        *metrics.Collector
	// ServeMetrics mounts /metrics on this router.
	ServeMetrics bool
	RateLimiter  *RateLimiter
	ReadyChecks  map[string]ReadyCheck
	Logger       *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	if d.Clock == nil {
		d.Clock = clock.RealClock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	h := NewHandler(d.Repo, d.Prefs, d.DefaultSession, d.Clock)
	health := NewHealthHandler(d.ReadyChecks, d.Clock)
	ws := NewWSHandler(d.Manager, d.Repo, d.Prefs, d.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz)

	mux.Handle("GET /v1/routes", GzipMiddleware(http.HandlerFunc(h.ListRoutes)))
	mux.Handle("GET /v1/routes/{id}", GzipMiddleware(http.HandlerFunc(h.GetRoute)))
	mux.Handle("GET /v1/routes/{id}/arrival", GzipMiddleware(http.HandlerFunc(h.GetArrival)))
	mux.HandleFunc("GET /v1/prefs", h.GetPrefs)
	mux.HandleFunc("PUT /v1/prefs", h.PutPrefs)
	// Not gzipped: the upgrade needs the raw connection.
	mux.HandleFunc("GET /v1/ws", ws.ServeWS)

	if d.ServeMetrics && d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = d.RateLimiter.Middleware(handler)
	handler = MetricsMiddleware(d.Metrics)(handler)
	handler = NewRequestLoggingMiddleware(d.Logger)(handler)
	handler = RequestIDMiddleware(handler)
	return handler
}
