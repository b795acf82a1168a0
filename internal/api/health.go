package api

import (
	"context"
	"net/http"
	"time"

	"nextbus/internal/clock"
)

// ReadyCheck reports whether a dependency is usable.
type ReadyCheck func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]ReadyCheck
	clock  clock.Clock
}

func NewHealthHandler(checks map[string]ReadyCheck, c clock.Clock) *HealthHandler {
	return &HealthHandler{checks: checks, clock: c}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready      bool              `json:"ready"`
	Checks     map[string]string `json:"checks"`
	ServerTime time.Time         `json:"serverTime"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := ReadyResponse{Ready: true, Checks: make(map[string]string, len(h.checks)), ServerTime: h.clock.Now()}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Ready = false
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}
