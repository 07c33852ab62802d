package ports

import (
	"context"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
)

// Client is an opaque handle on one live transport session.
// Implementations must be safe for concurrent Send calls.
type Client interface {
	// ID returns the transport-unique connection id.
	ID() string

	// Send writes one event to the client.
	Send(event string, payload any) error

	// Close terminates the session.
	Close() error
}

// SnapshotService produces the point-in-time views pushed to clients.
type SnapshotService interface {
	// GlobalSnapshot returns the newest points and the system metrics.
	GlobalSnapshot(ctx context.Context, limit int) (domain.Snapshot, error)

	// AreaSnapshot returns the newest points inside b.
	AreaSnapshot(ctx context.Context, b domain.Bounds, limit int) ([]domain.TrafficPoint, error)
}

// HealthReporter receives the outcome of each broadcast tick.
type HealthReporter interface {
	SetServing(serving bool)
}

// PointSink accepts new traffic points for persistence.
type PointSink interface {
	// Submit validates and queues a point, returning it with generated fields filled in.
	Submit(source string, p domain.TrafficPoint) (domain.TrafficPoint, error)
}
