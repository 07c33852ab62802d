package alerts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/lcalzada-xor/tmap/internal/core/ports"
	"github.com/lcalzada-xor/tmap/internal/geo"
)

// DefaultRadius is the proximity search radius in metres.
const DefaultRadius = 5000.0

// Service exposes alert queries and lifecycle operations.
type Service struct {
	store ports.AlertStore
	now   func() time.Time
}

// NewService creates the alert service.
func NewService(store ports.AlertStore) *Service {
	return &Service{store: store, now: time.Now}
}

// Active returns every active alert, most severe first.
func (s *Service) Active(ctx context.Context) ([]domain.Alert, error) {
	alerts, err := s.store.ActiveAlerts(ctx, s.now())
	if err != nil {
		return nil, err
	}
	return sorted(alerts), nil
}

// InArea returns the active alerts located inside b.
func (s *Service) InArea(ctx context.Context, b domain.Bounds) ([]domain.Alert, error) {
	alerts, err := s.store.ActiveAlertsInBounds(ctx, b, s.now())
	if err != nil {
		return nil, err
	}
	return sorted(alerts), nil
}

// Nearby returns active alerts within radius metres of center, nearest first.
// A non-positive radius uses DefaultRadius.
func (s *Service) Nearby(ctx context.Context, center domain.Location, radius float64) ([]domain.Alert, error) {
	if err := center.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if radius <= 0 {
		radius = DefaultRadius
	}

	candidates, err := s.store.ActiveAlertsInBounds(ctx, geo.BoundingBox(center, radius), s.now())
	if err != nil {
		return nil, err
	}

	type hit struct {
		alert domain.Alert
		dist  float64
	}
	hits := make([]hit, 0, len(candidates))
	for _, a := range candidates {
		if d := geo.DistanceMeters(center, a.Location); d <= radius {
			hits = append(hits, hit{a, d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	out := make([]domain.Alert, len(hits))
	for i, h := range hits {
		out[i] = h.alert
	}
	return out, nil
}

// Statistics counts active alerts by severity and type.
func (s *Service) Statistics(ctx context.Context) (domain.AlertStatistics, error) {
	alerts, err := s.store.ActiveAlerts(ctx, s.now())
	if err != nil {
		return domain.AlertStatistics{}, err
	}
	return domain.CountAlerts(alerts), nil
}

// Create validates and stores a new alert. Id and start time default when absent.
func (s *Service) Create(ctx context.Context, a domain.Alert) (domain.Alert, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.StartTime.IsZero() {
		a.StartTime = s.now()
	}
	if a.Source == "" {
		a.Source = domain.SourceUser
	}
	if a.AffectedRoads == nil {
		a.AffectedRoads = []string{}
	}
	if err := a.Validate(); err != nil {
		return domain.Alert{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := s.store.SaveAlert(ctx, a); err != nil {
		return domain.Alert{}, err
	}
	return a, nil
}

// Update replaces the stored alert with id, keeping its id.
func (s *Service) Update(ctx context.Context, id string, a domain.Alert) (domain.Alert, error) {
	existing, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return domain.Alert{}, err
	}
	a.ID = existing.ID
	if a.StartTime.IsZero() {
		a.StartTime = existing.StartTime
	}
	if a.Source == "" {
		a.Source = existing.Source
	}
	if a.AffectedRoads == nil {
		a.AffectedRoads = existing.AffectedRoads
	}
	if err := a.Validate(); err != nil {
		return domain.Alert{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := s.store.UpdateAlert(ctx, a); err != nil {
		return domain.Alert{}, err
	}
	return a, nil
}

// Close ends an alert now.
func (s *Service) Close(ctx context.Context, id string) (domain.Alert, error) {
	a, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return domain.Alert{}, err
	}
	now := s.now()
	a.EndTime = &now
	if err := s.store.UpdateAlert(ctx, *a); err != nil {
		return domain.Alert{}, err
	}
	return *a, nil
}

func sorted(alerts []domain.Alert) []domain.Alert {
	if alerts == nil {
		return []domain.Alert{}
	}
	domain.SortAlerts(alerts)
	return alerts
}
