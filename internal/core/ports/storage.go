package ports

import (
	"context"
	"time"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
)

// PointReader is the read side of traffic point persistence.
type PointReader interface {
	// RecentPoints returns up to limit points, newest first.
	RecentPoints(ctx context.Context, limit int) ([]domain.TrafficPoint, error)

	// PointsInBounds returns up to limit points inside b (inclusive), newest first.
	PointsInBounds(ctx context.Context, b domain.Bounds, limit int) ([]domain.TrafficPoint, error)

	// PointsSince returns every point observed at or after since.
	PointsSince(ctx context.Context, since time.Time) ([]domain.TrafficPoint, error)

	// CountPointsSince counts points observed at or after since.
	CountPointsSince(ctx context.Context, since time.Time) (int, error)
}

// PointWriter is the write side of traffic point persistence.
type PointWriter interface {
	SavePoint(ctx context.Context, p domain.TrafficPoint) error
	SavePointsBatch(ctx context.Context, points []domain.TrafficPoint) error
}

// MetricsStore persists aggregate metrics records.
type MetricsStore interface {
	SaveMetrics(ctx context.Context, r domain.MetricsRecord) error

	// LatestMetrics returns the newest record, or nil when none is stored.
	LatestMetrics(ctx context.Context) (*domain.MetricsRecord, error)

	// AggregateMetrics folds every record at or after since.
	AggregateMetrics(ctx context.Context, since time.Time) (domain.MetricsSnapshot, error)

	// MetricsSince returns every record at or after since, oldest first.
	MetricsSince(ctx context.Context, since time.Time) ([]domain.MetricsRecord, error)

	// MetricsInBounds returns the newest record per road segment inside b since the given time.
	MetricsInBounds(ctx context.Context, b domain.Bounds, since time.Time) ([]domain.MetricsRecord, error)

	// MetricsForSegment returns the records of one segment since the given time, oldest first.
	MetricsForSegment(ctx context.Context, segmentID string, since time.Time) ([]domain.MetricsRecord, error)

	// LatestMetricsForSegment returns the newest record of a segment or domain.ErrNotFound.
	LatestMetricsForSegment(ctx context.Context, segmentID string) (*domain.MetricsRecord, error)
}

// AlertStore persists traffic alerts.
type AlertStore interface {
	SaveAlert(ctx context.Context, a domain.Alert) error
	GetAlert(ctx context.Context, id string) (*domain.Alert, error)
	UpdateAlert(ctx context.Context, a domain.Alert) error

	// ActiveAlerts returns alerts whose end time is unset or after now.
	ActiveAlerts(ctx context.Context, now time.Time) ([]domain.Alert, error)

	// ActiveAlertsInBounds is ActiveAlerts restricted to an area.
	ActiveAlertsInBounds(ctx context.Context, b domain.Bounds, now time.Time) ([]domain.Alert, error)
}

// TrafficStore is the whole persistence layer.
type TrafficStore interface {
	PointReader
	PointWriter
	MetricsStore
	AlertStore

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close closes the storage connection.
	Close() error
}
