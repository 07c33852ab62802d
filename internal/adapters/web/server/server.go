package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lcalzada-xor/tmap/internal/adapters/web/handlers"
	ws "github.com/lcalzada-xor/tmap/internal/adapters/web/websocket"
	"github.com/lcalzada-xor/tmap/internal/core/ports"
)

// Analytics is served by both the traffic and the metrics handlers.
type Analytics interface {
	handlers.PointAnalytics
	handlers.MetricsAnalytics
}

// Realtime is the session service behind /ws.
type Realtime interface {
	ws.Realtime
	handlers.ConnectionCounter
}

// Deps are the services exposed over HTTP.
type Deps struct {
	Points         handlers.PointQueries
	Analytics      Analytics
	Alerts         handlers.AlertService
	Sink           ports.PointSink
	Store          handlers.Pinger
	Realtime       Realtime
	AllowedOrigins []string
	// PostLimit is the number of POST requests allowed per client per minute.
	PostLimit int
	Logger    *slog.Logger
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	Addr           string
	TrafficHandler *handlers.TrafficHandler
	AlertHandler   *handlers.AlertHandler
	MetricsHandler *handlers.MetricsHandler
	HealthHandler  *handlers.HealthHandler
	WSManager      *ws.WSManager
	postLimit      int
	logger         *slog.Logger
	srv            *http.Server
}

// NewServer creates a new web server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.PostLimit <= 0 {
		deps.PostLimit = 60
	}
	return &Server{
		Addr:           addr,
		TrafficHandler: handlers.NewTrafficHandler(deps.Points, deps.Analytics, deps.Sink),
		AlertHandler:   handlers.NewAlertHandler(deps.Alerts),
		MetricsHandler: handlers.NewMetricsHandler(deps.Analytics),
		HealthHandler:  handlers.NewHealthHandler(deps.Store, deps.Realtime),
		WSManager:      ws.NewWSManager(deps.Realtime, deps.AllowedOrigins, logger),
		postLimit:      deps.PostLimit,
		logger:         logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	handler := SetupRoutes(ctx, s)

	// Instrument with OpenTelemetry
	instrumentedHandler := otelhttp.NewHandler(handler, "tmap-server")

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           instrumentedHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("Web server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Web server shutdown error", "error", err)
		}
	}()

	s.logger.Info("Web server listening", "addr", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
