package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionCounter reports live realtime connections.
type ConnectionCounter interface {
	Count() int
}

// HealthHandler serves /health.
type HealthHandler struct {
	Store       Pinger
	Connections ConnectionCounter
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(store Pinger, conns ConnectionCounter) *HealthHandler {
	return &HealthHandler{Store: store, Connections: conns}
}

// HandleHealth reports 200 when the store answers a ping and 503 otherwise.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := h.Store.Ping(ctx); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":      status,
		"connections": h.Connections.Count(),
	})
}
