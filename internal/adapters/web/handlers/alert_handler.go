package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
)

// AlertService is the alert use-case surface.
type AlertService interface {
	Active(ctx context.Context) ([]domain.Alert, error)
	InArea(ctx context.Context, b domain.Bounds) ([]domain.Alert, error)
	Nearby(ctx context.Context, center domain.Location, radius float64) ([]domain.Alert, error)
	Statistics(ctx context.Context) (domain.AlertStatistics, error)
	Create(ctx context.Context, a domain.Alert) (domain.Alert, error)
	Update(ctx context.Context, id string, a domain.Alert) (domain.Alert, error)
	Close(ctx context.Context, id string) (domain.Alert, error)
}

// AlertHandler serves /api/alerts.
type AlertHandler struct {
	Service AlertService
}

// NewAlertHandler creates a new AlertHandler
func NewAlertHandler(service AlertService) *AlertHandler {
	return &AlertHandler{Service: service}
}

// HandleList returns every active alert.
func (h *AlertHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.Service.Active(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// HandleArea returns the active alerts inside a bounding box.
func (h *AlertHandler) HandleArea(w http.ResponseWriter, r *http.Request) {
	b, err := boundsFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	alerts, err := h.Service.InArea(r.Context(), b)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// HandleProximity returns active alerts within ?radius metres of ?lat,?lng.
func (h *AlertHandler) HandleProximity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("lat") == "" || q.Get("lng") == "" {
		writeError(w, r, errMissing("lat and lng are required"))
		return
	}
	lat, err := floatQuery(q, "lat", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	lng, err := floatQuery(q, "lng", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	radius, err := floatQuery(q, "radius", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	alerts, err := h.Service.Nearby(r.Context(), domain.Location{Lat: lat, Lng: lng}, radius)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// HandleStatistics returns active alert counts by severity and type.
func (h *AlertHandler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Statistics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleCreate stores a new alert.
func (h *AlertHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var a domain.Alert
	if err := decodeBody(w, r, &a); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.Service.Create(r.Context(), a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// HandleUpdate replaces the alert named in the path.
func (h *AlertHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var a domain.Alert
	if err := decodeBody(w, r, &a); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.Service.Update(r.Context(), id, a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// HandleClose ends the alert named in the path.
func (h *AlertHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	closed, err := h.Service.Close(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, closed)
}
