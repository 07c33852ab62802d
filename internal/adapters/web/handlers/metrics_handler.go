package handlers

import (
	"context"
	"net/http"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
)

// MetricsAnalytics is the metrics use-case surface.
type MetricsAnalytics interface {
	Record(ctx context.Context, r domain.MetricsRecord) (domain.MetricsRecord, error)
	Area(ctx context.Context, b domain.Bounds) ([]domain.MetricsRecord, error)
	Historical(ctx context.Context, segmentID, interval, duration string) ([]domain.HistoricalBucket, error)
	Overview(ctx context.Context) (domain.Overview, error)
	Predict(ctx context.Context, segmentID string) (domain.Prediction, error)
}

// MetricsHandler serves /api/metrics.
type MetricsHandler struct {
	Analytics MetricsAnalytics
}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler(analytics MetricsAnalytics) *MetricsHandler {
	return &MetricsHandler{Analytics: analytics}
}

// HandleCreate stores a metrics record.
func (h *MetricsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var rec domain.MetricsRecord
	if err := decodeBody(w, r, &rec); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := h.Analytics.Record(r.Context(), rec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// HandleArea returns the latest record per segment inside a bounding box.
func (h *MetricsHandler) HandleArea(w http.ResponseWriter, r *http.Request) {
	b, err := boundsFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := h.Analytics.Area(r.Context(), b)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleHistorical returns bucketed averages.
// Query: roadSegmentId (optional), interval (5min|15min|hour|day), duration (24h, 7d, 1w).
func (h *MetricsHandler) HandleHistorical(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	buckets, err := h.Analytics.Historical(r.Context(), q.Get("roadSegmentId"), q.Get("interval"), q.Get("duration"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

// HandleOverview returns the dashboard summary.
func (h *MetricsHandler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	o, err := h.Analytics.Overview(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// HandlePredict forecasts ?roadSegmentId.
func (h *MetricsHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	p, err := h.Analytics.Predict(r.Context(), r.URL.Query().Get("roadSegmentId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
