package handlers

import (
	"context"
	"net/http"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/lcalzada-xor/tmap/internal/core/ports"
)

// PointQueries reads traffic points.
type PointQueries interface {
	RecentPoints(ctx context.Context, limit int) ([]domain.TrafficPoint, error)
	AreaSnapshot(ctx context.Context, b domain.Bounds, limit int) ([]domain.TrafficPoint, error)
}

// PointAnalytics summarizes recent traffic points.
type PointAnalytics interface {
	PointMetrics(ctx context.Context) (domain.PointMetrics, error)
}

// TrafficHandler serves /api/traffic.
type TrafficHandler struct {
	Points    PointQueries
	Analytics PointAnalytics
	Sink      ports.PointSink
}

// NewTrafficHandler creates a new TrafficHandler
func NewTrafficHandler(points PointQueries, analytics PointAnalytics, sink ports.PointSink) *TrafficHandler {
	return &TrafficHandler{
		Points:    points,
		Analytics: analytics,
		Sink:      sink,
	}
}

// HandleList returns the newest points. ?limit is clamped to the configured maximum.
func (h *TrafficHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r.URL.Query(), "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	points, err := h.Points.RecentPoints(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// HandleArea returns the newest points inside the queried bounding box.
func (h *TrafficHandler) HandleArea(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	b, err := boundsFromQuery(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := intQuery(q, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	points, err := h.Points.AreaSnapshot(r.Context(), b, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// HandleCreate queues a new point for persistence.
func (h *TrafficHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var p domain.TrafficPoint
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	accepted, err := h.Sink.Submit("api", p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, accepted)
}

// HandleMetrics returns point-derived metrics for the last hour.
func (h *TrafficHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.Analytics.PointMetrics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
