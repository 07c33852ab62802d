package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/lcalzada-xor/tmap/internal/core/ports"
	"github.com/lcalzada-xor/tmap/internal/telemetry"
)

const (
	DefaultLimit   = 100
	MaxLimit       = 500
	DefaultWindow  = time.Hour
	DefaultTimeout = 3 * time.Second
)

// Config tunes the snapshot queries.
type Config struct {
	DefaultLimit int
	MaxLimit     int
	// MetricsWindow is the trailing window aggregated for system metrics.
	MetricsWindow time.Duration
	// QueryTimeout bounds each store query. Zero disables it.
	QueryTimeout time.Duration
}

// Service answers global and area snapshot queries against the store.
// It only reads.
type Service struct {
	points  ports.PointReader
	metrics ports.MetricsStore
	cfg     Config
	now     func() time.Time
}

// NewService creates a snapshot service. Zero config values take the defaults.
func NewService(store ports.TrafficStore, cfg Config) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = MaxLimit
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	if cfg.MetricsWindow <= 0 {
		cfg.MetricsWindow = DefaultWindow
	}
	return &Service{points: store, metrics: store, cfg: cfg, now: time.Now}
}

// ClampLimit maps a requested limit onto [1, MaxLimit]; non-positive means default.
func (s *Service) ClampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		return s.cfg.MaxLimit
	}
	return limit
}

// GlobalSnapshot returns the newest points and the current system metrics.
// Any store failure fails the whole snapshot with domain.ErrStoreUnavailable.
func (s *Service) GlobalSnapshot(ctx context.Context, limit int) (domain.Snapshot, error) {
	points, err := s.recentPoints(ctx, s.ClampLimit(limit))
	if err != nil {
		return domain.Snapshot{}, err
	}
	metrics, err := s.SystemMetrics(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{Points: points, Metrics: metrics}, nil
}

// RecentPoints returns the newest points with limit clamped.
func (s *Service) RecentPoints(ctx context.Context, limit int) ([]domain.TrafficPoint, error) {
	return s.recentPoints(ctx, s.ClampLimit(limit))
}

// AreaSnapshot returns the newest points inside b. No match yields an empty slice.
func (s *Service) AreaSnapshot(ctx context.Context, b domain.Bounds, limit int) ([]domain.TrafficPoint, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	points, err := s.points.PointsInBounds(ctx, b, s.ClampLimit(limit))
	if err != nil {
		telemetry.StoreErrors.WithLabelValues("points_in_bounds").Inc()
		return nil, storeErr("area points", err)
	}
	if points == nil {
		points = []domain.TrafficPoint{}
	}
	return points, nil
}

// SystemMetrics aggregates the trailing window. It falls back to the latest
// stored record and then to zero values stamped with the current time.
func (s *Service) SystemMetrics(ctx context.Context) (domain.MetricsSnapshot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now()
	agg, err := s.metrics.AggregateMetrics(ctx, now.Add(-s.cfg.MetricsWindow))
	if err != nil {
		telemetry.StoreErrors.WithLabelValues("aggregate_metrics").Inc()
		return domain.MetricsSnapshot{}, storeErr("aggregate metrics", err)
	}
	if agg.Samples > 0 {
		return agg, nil
	}

	latest, err := s.metrics.LatestMetrics(ctx)
	if err != nil {
		telemetry.StoreErrors.WithLabelValues("latest_metrics").Inc()
		return domain.MetricsSnapshot{}, storeErr("latest metrics", err)
	}
	if latest != nil {
		return domain.SnapshotFromRecord(*latest), nil
	}
	return domain.EmptyMetrics(now), nil
}

func (s *Service) recentPoints(ctx context.Context, limit int) ([]domain.TrafficPoint, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	points, err := s.points.RecentPoints(ctx, limit)
	if err != nil {
		telemetry.StoreErrors.WithLabelValues("recent_points").Inc()
		return nil, storeErr("recent points", err)
	}
	if points == nil {
		points = []domain.TrafficPoint{}
	}
	return points, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.QueryTimeout)
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
}
