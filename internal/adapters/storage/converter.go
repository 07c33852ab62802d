package storage

import (
	"encoding/json"
	"time"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
)

// PointModel is the GORM model for traffic points.
type PointModel struct {
	ID        string    `gorm:"primaryKey"`
	Lat       float64   `gorm:"index:idx_points_geo"`
	Lng       float64   `gorm:"index:idx_points_geo"`
	Status    string    `gorm:"index"`
	Timestamp time.Time `gorm:"index"`
	SpeedKmph float64
	RoadName  string
}

func (PointModel) TableName() string { return "traffic_points" }

// MetricsModel is the GORM model for metrics records.
type MetricsModel struct {
	ID              string    `gorm:"primaryKey"`
	Timestamp       time.Time `gorm:"index"`
	Lat             float64   `gorm:"index:idx_metrics_geo"`
	Lng             float64   `gorm:"index:idx_metrics_geo"`
	RoadSegmentID   string    `gorm:"index"`
	AverageSpeed    float64
	VehicleCount    int
	CongestionLevel float64
	TrafficDensity  float64
	AverageWaitTime *float64
	Sensors         string // JSON encoded []domain.Sensor
	Weather         string // JSON encoded domain.WeatherConditions
}

func (MetricsModel) TableName() string { return "traffic_metrics" }

// AlertModel is the GORM model for alerts.
type AlertModel struct {
	ID            string `gorm:"primaryKey"`
	Type          string `gorm:"index"`
	Lat           float64
	Lng           float64
	Description   string
	StartTime     time.Time  `gorm:"index"`
	EndTime       *time.Time `gorm:"index"`
	Severity      string     `gorm:"index"`
	AffectedRoads string     // JSON encoded []string
	ImpactRadius  *float64
	Source        string
	Metadata      string // JSON encoded map
	EventID       string
	MediaURLs     string // JSON encoded []string
	Impact        string // JSON encoded domain.TrafficImpact
}

func (AlertModel) TableName() string { return "traffic_alerts" }

func toPointModel(p domain.TrafficPoint) PointModel {
	return PointModel{
		ID:        p.ID,
		Lat:       p.Location.Lat,
		Lng:       p.Location.Lng,
		Status:    string(p.Status),
		SpeedKmph: p.SpeedKmph,
		Timestamp: p.Timestamp.UTC(),
		RoadName:  p.RoadName,
	}
}

func toPoint(m PointModel) domain.TrafficPoint {
	return domain.TrafficPoint{
		ID:        m.ID,
		Location:  domain.Location{Lat: m.Lat, Lng: m.Lng},
		Status:    domain.TrafficStatus(m.Status),
		SpeedKmph: m.SpeedKmph,
		Timestamp: m.Timestamp.UTC(),
		RoadName:  m.RoadName,
	}
}

func toPoints(models []PointModel) []domain.TrafficPoint {
	points := make([]domain.TrafficPoint, len(models))
	for i, m := range models {
		points[i] = toPoint(m)
	}
	return points
}

func toMetricsModel(r domain.MetricsRecord) MetricsModel {
	m := MetricsModel{
		ID:              r.ID,
		Timestamp:       r.Timestamp.UTC(),
		Lat:             r.Location.Lat,
		Lng:             r.Location.Lng,
		RoadSegmentID:   r.RoadSegmentID,
		AverageSpeed:    r.Metrics.AverageSpeed,
		VehicleCount:    r.Metrics.VehicleCount,
		CongestionLevel: r.Metrics.CongestionLevel,
		TrafficDensity:  r.Metrics.TrafficDensity,
		AverageWaitTime: r.Metrics.AverageWaitTime,
		Sensors:         encodeJSON(r.Sensors),
	}
	if r.Weather != nil {
		m.Weather = encodeJSON(r.Weather)
	}
	return m
}

func toMetrics(m MetricsModel) domain.MetricsRecord {
	r := domain.MetricsRecord{
		ID:            m.ID,
		Timestamp:     m.Timestamp.UTC(),
		Location:      domain.Location{Lat: m.Lat, Lng: m.Lng},
		RoadSegmentID: m.RoadSegmentID,
		Metrics: domain.SegmentMetrics{
			AverageSpeed:    m.AverageSpeed,
			VehicleCount:    m.VehicleCount,
			CongestionLevel: m.CongestionLevel,
			TrafficDensity:  m.TrafficDensity,
			AverageWaitTime: m.AverageWaitTime,
		},
		Sensors: []domain.Sensor{},
	}
	decodeJSON(m.Sensors, &r.Sensors)
	if r.Sensors == nil {
		r.Sensors = []domain.Sensor{}
	}
	if m.Weather != "" {
		r.Weather = &domain.WeatherConditions{}
		decodeJSON(m.Weather, r.Weather)
	}
	return r
}

func toMetricsList(models []MetricsModel) []domain.MetricsRecord {
	records := make([]domain.MetricsRecord, len(models))
	for i, m := range models {
		records[i] = toMetrics(m)
	}
	return records
}

func toAlertModel(a domain.Alert) AlertModel {
	m := AlertModel{
		ID:            a.ID,
		Type:          string(a.Type),
		Lat:           a.Location.Lat,
		Lng:           a.Location.Lng,
		Description:   a.Description,
		StartTime:     a.StartTime.UTC(),
		Severity:      string(a.Severity),
		AffectedRoads: encodeJSON(a.AffectedRoads),
		ImpactRadius:  a.ImpactRadius,
		Source:        string(a.Source),
		EventID:       a.EventID,
	}
	if a.EndTime != nil {
		end := a.EndTime.UTC()
		m.EndTime = &end
	}
	if len(a.Metadata) > 0 {
		m.Metadata = encodeJSON(a.Metadata)
	}
	if len(a.MediaURLs) > 0 {
		m.MediaURLs = encodeJSON(a.MediaURLs)
	}
	if a.Impact != nil {
		m.Impact = encodeJSON(a.Impact)
	}
	return m
}

func toAlert(m AlertModel) domain.Alert {
	a := domain.Alert{
		ID:            m.ID,
		Type:          domain.AlertType(m.Type),
		Location:      domain.Location{Lat: m.Lat, Lng: m.Lng},
		Description:   m.Description,
		StartTime:     m.StartTime.UTC(),
		Severity:      domain.AlertSeverity(m.Severity),
		AffectedRoads: []string{},
		ImpactRadius:  m.ImpactRadius,
		Source:        domain.AlertSource(m.Source),
		EventID:       m.EventID,
	}
	if m.EndTime != nil {
		end := m.EndTime.UTC()
		a.EndTime = &end
	}
	decodeJSON(m.AffectedRoads, &a.AffectedRoads)
	if a.AffectedRoads == nil {
		a.AffectedRoads = []string{}
	}
	decodeJSON(m.Metadata, &a.Metadata)
	decodeJSON(m.MediaURLs, &a.MediaURLs)
	if m.Impact != "" {
		a.Impact = &domain.TrafficImpact{}
		decodeJSON(m.Impact, a.Impact)
	}
	return a
}

func toAlerts(models []AlertModel) []domain.Alert {
	alerts := make([]domain.Alert, len(models))
	for i, m := range models {
		alerts[i] = toAlert(m)
	}
	return alerts
}

func encodeJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeJSON(s string, v any) {
	if s == "" {
		return
	}
	_ = json.Unmarshal([]byte(s), v)
}
