package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lcalzada-xor/tmap/internal/adapters/web/middleware"
)

// SetupRoutes builds the router. ctx bounds the rate limiter's sweeper.
func SetupRoutes(ctx context.Context, s *Server) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = jsonStatus(http.StatusNotFound, "Not found")
	r.MethodNotAllowedHandler = jsonStatus(http.StatusMethodNotAllowed, "Method not allowed")

	postLimiter := middleware.NewRateLimiter(ctx, s.postLimit, 1*time.Minute)
	limited := func(h http.HandlerFunc) http.Handler {
		return middleware.RateLimitMiddleware(postLimiter)(h)
	}

	api := r.PathPrefix("/api").Subrouter()

	// Traffic points
	api.HandleFunc("/traffic/points", s.TrafficHandler.HandleList).Methods(http.MethodGet)
	api.Handle("/traffic/points", limited(s.TrafficHandler.HandleCreate)).Methods(http.MethodPost)
	api.HandleFunc("/traffic/points/area", s.TrafficHandler.HandleArea).Methods(http.MethodGet)
	api.HandleFunc("/traffic/metrics", s.TrafficHandler.HandleMetrics).Methods(http.MethodGet)

	// Alerts
	api.HandleFunc("/alerts", s.AlertHandler.HandleList).Methods(http.MethodGet)
	api.Handle("/alerts", limited(s.AlertHandler.HandleCreate)).Methods(http.MethodPost)
	api.HandleFunc("/alerts/area", s.AlertHandler.HandleArea).Methods(http.MethodGet)
	api.HandleFunc("/alerts/proximity", s.AlertHandler.HandleProximity).Methods(http.MethodGet)
	api.HandleFunc("/alerts/statistics", s.AlertHandler.HandleStatistics).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id}", s.AlertHandler.HandleUpdate).Methods(http.MethodPut)
	api.HandleFunc("/alerts/{id}/close", s.AlertHandler.HandleClose).Methods(http.MethodPatch)

	// Aggregate metrics
	api.Handle("/metrics", limited(s.MetricsHandler.HandleCreate)).Methods(http.MethodPost)
	api.HandleFunc("/metrics/area", s.MetricsHandler.HandleArea).Methods(http.MethodGet)
	api.HandleFunc("/metrics/historical", s.MetricsHandler.HandleHistorical).Methods(http.MethodGet)
	api.HandleFunc("/metrics/overview", s.MetricsHandler.HandleOverview).Methods(http.MethodGet)
	api.HandleFunc("/metrics/predict", s.MetricsHandler.HandlePredict).Methods(http.MethodGet)

	r.HandleFunc("/health", s.HealthHandler.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.WSManager.HandleWebSocket)

	// Outside the router so preflight requests reach it for every route.
	return middleware.CORS(r)
}

func jsonStatus(status int, msg string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
	})
}
