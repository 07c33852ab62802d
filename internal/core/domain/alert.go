package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// AlertSeverity orders alerts: critical > major > minor.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityMajor    AlertSeverity = "major"
	SeverityMinor    AlertSeverity = "minor"
)

// Weight is higher for more severe alerts; unknown severities weigh 0.
func (s AlertSeverity) Weight() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityMajor:
		return 2
	case SeverityMinor:
		return 1
	}
	return 0
}

// AlertType classifies the cause of an alert.
type AlertType string

const (
	AlertAccident      AlertType = "accident"
	AlertConstruction  AlertType = "construction"
	AlertEvent         AlertType = "event"
	AlertWeatherHazard AlertType = "weatherHazard"
	AlertRoadClosure   AlertType = "roadClosure"
	AlertCongestion    AlertType = "congestion"
	AlertEmergency     AlertType = "emergency"
	AlertSystem        AlertType = "systemAlert"
)

var alertTypes = map[AlertType]bool{
	AlertAccident: true, AlertConstruction: true, AlertEvent: true, AlertWeatherHazard: true,
	AlertRoadClosure: true, AlertCongestion: true, AlertEmergency: true, AlertSystem: true,
}

// AlertSource records who raised the alert.
type AlertSource string

const (
	SourceSensor     AlertSource = "sensor"
	SourceUser       AlertSource = "user"
	SourceAuthority  AlertSource = "authority"
	SourcePrediction AlertSource = "prediction"
	SourceEmergency  AlertSource = "emergency"
)

// TrafficImpact is the estimated effect of an alert on travel.
type TrafficImpact struct {
	EstimatedDelay    float64 `json:"estimatedDelay"`
	AlternativeRoutes bool    `json:"alternativeRoutes"`
}

// Alert is an incident affecting traffic. It is active while EndTime is nil or in the future.
type Alert struct {
	ID            string         `json:"id"`
	Type          AlertType      `json:"type"`
	Location      Location       `json:"location"`
	Description   string         `json:"description"`
	StartTime     time.Time      `json:"startTime"`
	EndTime       *time.Time     `json:"endTime,omitempty"`
	Severity      AlertSeverity  `json:"severity"`
	AffectedRoads []string       `json:"affectedRoads"`
	ImpactRadius  *float64       `json:"impactRadius,omitempty"`
	Source        AlertSource    `json:"source,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	EventID       string         `json:"eventId,omitempty"`
	MediaURLs     []string       `json:"mediaUrls,omitempty"`
	Impact        *TrafficImpact `json:"trafficImpact,omitempty"`
}

// IsActive reports whether the alert is still in effect at now.
func (a Alert) IsActive(now time.Time) bool {
	return a.EndTime == nil || a.EndTime.After(now)
}

// Validate checks the required fields and enum values.
func (a Alert) Validate() error {
	if !alertTypes[a.Type] {
		return fmt.Errorf("unknown alert type %q", a.Type)
	}
	if a.Severity.Weight() == 0 {
		return fmt.Errorf("unknown alert severity %q", a.Severity)
	}
	if strings.TrimSpace(a.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if err := a.Location.Validate(); err != nil {
		return err
	}
	if a.EndTime != nil && a.EndTime.Before(a.StartTime) {
		return fmt.Errorf("endTime precedes startTime")
	}
	return nil
}

// SortAlerts orders alerts by severity (critical first), then newest start time.
func SortAlerts(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		wi, wj := alerts[i].Severity.Weight(), alerts[j].Severity.Weight()
		if wi != wj {
			return wi > wj
		}
		return alerts[i].StartTime.After(alerts[j].StartTime)
	})
}

// AlertStatistics counts active alerts.
type AlertStatistics struct {
	Total      int                   `json:"total"`
	BySeverity map[AlertSeverity]int `json:"bySeverity"`
	ByType     map[AlertType]int     `json:"byType"`
}

// CountAlerts builds statistics over the given alerts.
func CountAlerts(alerts []Alert) AlertStatistics {
	stats := AlertStatistics{
		BySeverity: make(map[AlertSeverity]int),
		ByType:     make(map[AlertType]int),
	}
	for _, a := range alerts {
		stats.Total++
		stats.BySeverity[a.Severity]++
		stats.ByType[a.Type]++
	}
	return stats
}
