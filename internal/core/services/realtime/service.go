package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/lcalzada-xor/tmap/internal/core/ports"
	"github.com/lcalzada-xor/tmap/internal/core/services/registry"
	"github.com/lcalzada-xor/tmap/internal/core/services/subscription"
	"github.com/lcalzada-xor/tmap/internal/telemetry"
)

const (
	msgInitialDataFailed = "Failed to load initial data"
	msgAreaDataFailed    = "Failed to load area data"
)

// Service binds transport events to the registry, the subscription manager
// and the snapshot queries.
type Service struct {
	registry  *registry.ConnectionRegistry
	subs      *subscription.Manager
	snapshots ports.SnapshotService
	limit     int
	logger    *slog.Logger
}

// NewService creates the realtime service. limit is passed to every snapshot query.
func NewService(reg *registry.ConnectionRegistry, snapshots ports.SnapshotService, limit int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry:  reg,
		subs:      subscription.NewManager(reg, logger),
		snapshots: snapshots,
		limit:     limit,
		logger:    logger,
	}
}

// Connect registers the client and pushes the initial global snapshot.
func (s *Service) Connect(ctx context.Context, client ports.Client) error {
	id := client.ID()
	if err := s.registry.Register(id, client); err != nil {
		return err
	}
	s.logger.Info("Client connected", "conn", id)

	snap, err := s.snapshots.GlobalSnapshot(ctx, s.limit)
	if err != nil {
		s.logger.Warn("Initial snapshot failed", "conn", id, "error", err)
		s.sendError(id, client, msgInitialDataFailed)
		return nil
	}
	s.send(id, client, domain.EventTrafficData, snap.Points)
	s.send(id, client, domain.EventSystemMetrics, snap.Metrics)
	return nil
}

// Disconnect unregisters the connection. Safe to call more than once.
func (s *Service) Disconnect(id string) {
	if s.registry.Unregister(id) {
		s.logger.Info("Client disconnected", "conn", id)
	}
}

// HandleMessage dispatches one inbound event from connection id.
func (s *Service) HandleMessage(ctx context.Context, id, event string, payload json.RawMessage) {
	entry, ok := s.registry.Get(id)
	if !ok {
		s.logger.Debug("Message from unknown connection", "conn", id, "event", event)
		return
	}

	switch event {
	case domain.EventSubscribeArea:
		s.subscribeArea(ctx, entry, payload)
	case domain.EventUnsubscribeArea:
		s.subs.OnUnsubscribeArea(id)
	case domain.EventSubscribeGlobal:
		if _, err := s.subs.OnSubscribeGlobal(id); err != nil {
			s.logger.Debug("Subscribe for departed connection", "conn", id, "error", err)
		}
	default:
		s.sendError(id, entry.Client, fmt.Sprintf("unknown event %q", event))
	}
}

func (s *Service) subscribeArea(ctx context.Context, entry registry.Entry, payload json.RawMessage) {
	req, err := domain.DecodeAreaRequest(payload)
	if err == nil {
		var sub domain.Subscription
		sub, err = s.subs.OnSubscribeArea(entry.ID, req)
		if err == nil {
			s.pushArea(ctx, entry, sub.Area)
			return
		}
	}

	switch {
	case errors.Is(err, domain.ErrInvalidArea):
		s.logger.Info("Rejected area subscription", "conn", entry.ID, "error", err)
		s.sendError(entry.ID, entry.Client, err.Error())
	case errors.Is(err, domain.ErrUnknownConnection):
		s.logger.Debug("Subscribe for departed connection", "conn", entry.ID)
	default:
		s.logger.Warn("Area subscription failed", "conn", entry.ID, "error", err)
	}
}

func (s *Service) pushArea(ctx context.Context, entry registry.Entry, b domain.Bounds) {
	points, err := s.snapshots.AreaSnapshot(ctx, b, s.limit)
	// The connection may have gone away while the query was in flight.
	if !s.registry.Has(entry.ID) {
		s.logger.Debug("Dropping area push for departed connection", "conn", entry.ID)
		return
	}
	if err != nil {
		s.logger.Warn("Area snapshot failed", "conn", entry.ID, "error", err)
		s.sendError(entry.ID, entry.Client, msgAreaDataFailed)
		return
	}
	s.send(entry.ID, entry.Client, domain.EventAreaTrafficData, points)
}

// BroadcastNewPoints pushes freshly ingested points to every connection.
func (s *Service) BroadcastNewPoints(points []domain.TrafficPoint) {
	if len(points) == 0 {
		return
	}
	for _, e := range s.registry.List() {
		for _, p := range points {
			if err := e.Client.Send(domain.EventNewTrafficPoint, p); err != nil {
				s.pushFailed(e.ID, domain.EventNewTrafficPoint, err)
				break
			}
		}
	}
}

// Count returns the number of live connections.
func (s *Service) Count() int {
	return s.registry.Count()
}

// Shutdown drops every connection and closes its client.
func (s *Service) Shutdown() {
	for _, e := range s.registry.Clear() {
		if err := e.Client.Close(); err != nil {
			s.logger.Debug("Close failed", "conn", e.ID, "error", err)
		}
	}
}

func (s *Service) send(id string, c ports.Client, event string, payload any) {
	if err := c.Send(event, payload); err != nil {
		s.pushFailed(id, event, err)
	}
}

func (s *Service) sendError(id string, c ports.Client, msg string) {
	s.send(id, c, domain.EventError, domain.ErrorPayload{Message: msg})
}

func (s *Service) pushFailed(id, event string, err error) {
	telemetry.PushFailures.WithLabelValues(event).Inc()
	s.logger.Warn("Push failed", "conn", id, "event", event, "error", errors.Join(domain.ErrTransportPush, err))
}
