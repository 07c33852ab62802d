package geo

import (
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371008.8

// DistanceMeters returns the great-circle distance between two coordinates.
func DistanceMeters(a, b domain.Location) float64 {
	pa := s2.LatLngFromDegrees(a.Lat, a.Lng)
	pb := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return pa.Distance(pb).Radians() * EarthRadiusMeters
}

// Within reports whether loc is at most radius metres from center.
func Within(center, loc domain.Location, radius float64) bool {
	return DistanceMeters(center, loc) <= radius
}

// BoundingBox returns the smallest lat/lng rectangle containing the circle of
// radius metres around center. It is used to pre-filter store queries.
func BoundingBox(center domain.Location, radius float64) domain.Bounds {
	c := s2.CapFromCenterAngle(
		s2.PointFromLatLng(s2.LatLngFromDegrees(center.Lat, center.Lng)),
		s1.Angle(radius/EarthRadiusMeters),
	)
	rect := c.RectBound()
	b := domain.Bounds{
		North: rect.Hi().Lat.Degrees(),
		South: rect.Lo().Lat.Degrees(),
		East:  rect.Hi().Lng.Degrees(),
		West:  rect.Lo().Lng.Degrees(),
	}
	// A cap crossing the antimeridian or a pole yields an inverted or full
	// longitude interval; fall back to every longitude.
	if rect.Lng.IsInverted() || rect.Lng.IsFull() {
		b.East, b.West = 180, -180
	}
	return b
}

// Provider defines the interface for obtaining a reference location.
type Provider interface {
	GetLocation() domain.Location
}

// StaticProvider implements Provider with a fixed location.
type StaticProvider struct {
	Lat float64
	Lng float64
}

// NewStaticProvider creates a provider that always returns the same location.
func NewStaticProvider(lat, lng float64) *StaticProvider {
	return &StaticProvider{
		Lat: lat,
		Lng: lng,
	}
}

// GetLocation returns the fixed location.
func (s *StaticProvider) GetLocation() domain.Location {
	return domain.Location{Lat: s.Lat, Lng: s.Lng}
}
