package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/lcalzada-xor/tmap/internal/core/services/ingest"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Response encode failed", "error", err)
	}
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "Something went wrong on the server"

	switch {
	case errors.Is(err, domain.ErrInvalidArea), errors.Is(err, domain.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrStoreUnavailable):
		status, msg = http.StatusServiceUnavailable, domain.ErrStoreUnavailable.Error()
	case errors.Is(err, ingest.ErrQueueFull):
		status, msg = http.StatusServiceUnavailable, ingest.ErrQueueFull.Error()
	}

	if status >= http.StatusInternalServerError {
		slog.Warn("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Success: false, Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	return nil
}

// boundsFromQuery reads north, south, east and west query parameters.
func boundsFromQuery(q url.Values) (domain.Bounds, error) {
	var req domain.AreaRequest
	edges := []struct {
		name string
		dst  **float64
	}{{"north", &req.North}, {"south", &req.South}, {"east", &req.East}, {"west", &req.West}}

	for _, e := range edges {
		raw := q.Get(e.name)
		if raw == "" {
			return domain.Bounds{}, &domain.InvalidAreaError{Reason: "Missing coordinates for bounding box"}
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Bounds{}, &domain.InvalidAreaError{Reason: fmt.Sprintf("%s must be a number", e.name)}
		}
		*e.dst = &v
	}
	return req.Bounds()
}

func intQuery(q url.Values, name string, fallback int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidInput, name)
	}
	return v, nil
}

func floatQuery(q url.Values, name string, fallback float64) (float64, error) {
	raw := q.Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", domain.ErrInvalidInput, name)
	}
	return v, nil
}

func errMissing(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, msg)
}
