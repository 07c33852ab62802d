package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// SensorStatus is the health of a roadside sensor.
type SensorStatus string

const (
	SensorActive   SensorStatus = "active"
	SensorInactive SensorStatus = "inactive"
	SensorDegraded SensorStatus = "degraded"
)

// Sensor identifies a device that contributed to a metrics record.
type Sensor struct {
	ID     string       `json:"id"`
	Type   string       `json:"type"`
	Status SensorStatus `json:"status"`
}

// SegmentMetrics are the measured values of one record.
// CongestionLevel uses the 0-1 ratio scale.
type SegmentMetrics struct {
	AverageSpeed    float64  `json:"averageSpeed"`
	VehicleCount    int      `json:"vehicleCount"`
	CongestionLevel float64  `json:"congestionLevel"`
	TrafficDensity  float64  `json:"trafficDensity"`
	AverageWaitTime *float64 `json:"averageWaitTime,omitempty"`
}

// WeatherConditions is optional context attached to a metrics record.
type WeatherConditions struct {
	Temperature   *float64 `json:"temperature,omitempty"`
	Precipitation *float64 `json:"precipitation,omitempty"`
	Visibility    *float64 `json:"visibility,omitempty"`
	WindSpeed     *float64 `json:"windSpeed,omitempty"`
}

// MetricsRecord is one stored measurement for a location or road segment.
type MetricsRecord struct {
	ID            string             `json:"id"`
	Timestamp     time.Time          `json:"timestamp"`
	Location      Location           `json:"location"`
	RoadSegmentID string             `json:"roadSegmentId,omitempty"`
	Metrics       SegmentMetrics     `json:"metrics"`
	Sensors       []Sensor           `json:"sensors"`
	Weather       *WeatherConditions `json:"weatherConditions,omitempty"`
}

// Validate checks the required fields of a record.
func (r MetricsRecord) Validate() error {
	if err := r.Location.Validate(); err != nil {
		return err
	}
	m := r.Metrics
	if m.AverageSpeed < 0 || m.VehicleCount < 0 || m.TrafficDensity < 0 {
		return fmt.Errorf("metrics must be non-negative")
	}
	if math.IsNaN(m.CongestionLevel) || m.CongestionLevel < 0 || m.CongestionLevel > 1 {
		return fmt.Errorf("congestion level %v must be within [0, 1]", m.CongestionLevel)
	}
	for _, s := range r.Sensors {
		if strings.TrimSpace(s.ID) == "" || strings.TrimSpace(s.Type) == "" {
			return fmt.Errorf("sensor id and type are required")
		}
	}
	return nil
}

// MetricsSnapshot is the system-wide aggregate pushed to clients.
// AvgCongestion uses the 0-1 ratio scale.
type MetricsSnapshot struct {
	AvgSpeed      float64   `json:"avgSpeed"`
	TotalVehicles int       `json:"totalVehicles"`
	AvgCongestion float64   `json:"avgCongestion"`
	SensorCount   int       `json:"sensorCount"`
	Samples       int       `json:"-"`
	LastUpdate    time.Time `json:"lastUpdate"`
}

// EmptyMetrics is the zero-valued snapshot used when nothing is stored.
func EmptyMetrics(now time.Time) MetricsSnapshot {
	return MetricsSnapshot{LastUpdate: now}
}

// AggregateMetrics folds records into a snapshot: mean speed and congestion,
// summed vehicles, distinct sensor ids and the newest timestamp.
func AggregateMetrics(records []MetricsRecord) MetricsSnapshot {
	var snap MetricsSnapshot
	if len(records) == 0 {
		return snap
	}

	sensors := make(map[string]struct{})
	var speed, congestion float64
	for _, r := range records {
		speed += r.Metrics.AverageSpeed
		congestion += r.Metrics.CongestionLevel
		snap.TotalVehicles += r.Metrics.VehicleCount
		for _, s := range r.Sensors {
			sensors[s.ID] = struct{}{}
		}
		if r.Timestamp.After(snap.LastUpdate) {
			snap.LastUpdate = r.Timestamp
		}
	}
	n := float64(len(records))
	snap.AvgSpeed = speed / n
	snap.AvgCongestion = congestion / n
	snap.SensorCount = len(sensors)
	snap.Samples = len(records)
	return snap
}

// SnapshotFromRecord projects a single record onto the snapshot shape.
func SnapshotFromRecord(r MetricsRecord) MetricsSnapshot {
	return MetricsSnapshot{
		AvgSpeed:      r.Metrics.AverageSpeed,
		TotalVehicles: r.Metrics.VehicleCount,
		AvgCongestion: r.Metrics.CongestionLevel,
		SensorCount:   len(r.Sensors),
		Samples:       1,
		LastUpdate:    r.Timestamp,
	}
}

// Snapshot is the global payload computed once per tick.
type Snapshot struct {
	Points  []TrafficPoint  `json:"points"`
	Metrics MetricsSnapshot `json:"metrics"`
}

// Hotspot is a road segment whose mean congestion crossed the hotspot threshold.
type Hotspot struct {
	RoadSegmentID string   `json:"roadSegmentId"`
	AvgCongestion float64  `json:"avgCongestion"`
	Location      Location `json:"location"`
}

// Overview is the dashboard summary of the last hour.
type Overview struct {
	SystemMetrics      MetricsSnapshot `json:"systemMetrics"`
	ActivePoints       int             `json:"activePoints"`
	CongestionHotspots []Hotspot       `json:"congestionHotspots"`
}

// HistoricalBucket is the average of the records falling in one time bucket.
type HistoricalBucket struct {
	Timestamp          time.Time `json:"timestamp"`
	AverageSpeed       float64   `json:"averageSpeed"`
	AvgVehicleCount    float64   `json:"avgVehicleCount"`
	AvgCongestionLevel float64   `json:"avgCongestionLevel"`
	AvgTrafficDensity  float64   `json:"avgTrafficDensity"`
	Samples            int       `json:"samples"`
}

// ForecastPoint is the expected state of a segment at one horizon.
type ForecastPoint struct {
	Timeframe       string  `json:"timeframe"`
	AverageSpeed    float64 `json:"averageSpeed"`
	CongestionLevel float64 `json:"congestionLevel"`
	Confidence      float64 `json:"confidence"`
}

// Prediction is the short-term forecast for a road segment.
type Prediction struct {
	RoadSegmentID  string          `json:"roadSegmentId"`
	CurrentMetrics SegmentMetrics  `json:"currentMetrics"`
	Predictions    []ForecastPoint `json:"predictions"`
	Timestamp      time.Time       `json:"timestamp"`
}
