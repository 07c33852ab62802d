package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TrafficStatus is the ordered congestion level of a traffic point: low < medium < high < severe.
type TrafficStatus string

const (
	StatusLow    TrafficStatus = "low"
	StatusMedium TrafficStatus = "medium"
	StatusHigh   TrafficStatus = "high"
	StatusSevere TrafficStatus = "severe"
)

// Rank returns the position of the status in the low..severe ordering, or -1 if unknown.
func (s TrafficStatus) Rank() int {
	switch s {
	case StatusLow:
		return 0
	case StatusMedium:
		return 1
	case StatusHigh:
		return 2
	case StatusSevere:
		return 3
	}
	return -1
}

// IsValid reports whether s is one of the four known statuses.
func (s TrafficStatus) IsValid() bool {
	return s.Rank() >= 0
}

// CongestionWeight maps a status onto the 0-1 congestion scale.
func (s TrafficStatus) CongestionWeight() float64 {
	switch s {
	case StatusLow:
		return 0.25
	case StatusMedium:
		return 0.5
	case StatusHigh:
		return 0.75
	case StatusSevere:
		return 1
	}
	return 0
}

// Location is a WGS84 coordinate in degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that the coordinate is finite and within the valid degree ranges.
func (l Location) Validate() error {
	if math.IsNaN(l.Lat) || math.IsInf(l.Lat, 0) || l.Lat < -90 || l.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", l.Lat)
	}
	if math.IsNaN(l.Lng) || math.IsInf(l.Lng, 0) || l.Lng < -180 || l.Lng > 180 {
		return fmt.Errorf("longitude %v out of range", l.Lng)
	}
	return nil
}

// TrafficPoint is a read-only observation of conditions on a road at a point in time.
type TrafficPoint struct {
	ID        string        `json:"id"`
	Location  Location      `json:"location"`
	Status    TrafficStatus `json:"status"`
	SpeedKmph float64       `json:"speedKmph"`
	Timestamp time.Time     `json:"timestamp"`
	RoadName  string        `json:"roadName"`
}

// Validate checks the fields a stored point must carry.
func (p TrafficPoint) Validate() error {
	if err := p.Location.Validate(); err != nil {
		return err
	}
	if !p.Status.IsValid() {
		return fmt.Errorf("unknown traffic status %q", p.Status)
	}
	if p.SpeedKmph < 0 || math.IsNaN(p.SpeedKmph) || math.IsInf(p.SpeedKmph, 0) {
		return fmt.Errorf("speed %v must be a non-negative number", p.SpeedKmph)
	}
	if strings.TrimSpace(p.RoadName) == "" {
		return fmt.Errorf("road name is required")
	}
	return nil
}

// PointMetrics is the status-weighted summary of a set of traffic points.
type PointMetrics struct {
	AverageSpeed    float64   `json:"averageSpeed"`
	VehicleCount    int       `json:"vehicleCount"`
	CongestionLevel float64   `json:"congestionLevel"`
	Timestamp       time.Time `json:"timestamp"`
}

// SummarizePoints averages speed over the points and derives congestion as the
// mean status weight. An empty input yields zero values.
func SummarizePoints(points []TrafficPoint, now time.Time) PointMetrics {
	m := PointMetrics{Timestamp: now}
	if len(points) == 0 {
		return m
	}

	var speed, weight float64
	for _, p := range points {
		speed += p.SpeedKmph
		weight += p.Status.CongestionWeight()
	}
	n := float64(len(points))
	m.AverageSpeed = speed / n
	m.VehicleCount = len(points)
	m.CongestionLevel = weight / n
	return m
}
