package analytics

import (
	"math"
	"time"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
)

const minForecastSpeed = 5.0

var horizons = []struct {
	label      string
	factor     float64
	confidence float64
}{
	{"15min", 0.9, 0.85},
	{"30min", 1.0, 0.75},
	{"60min", 1.1, 0.65},
}

// RushHourMultiplier returns the expected traffic intensity at t relative to normal.
func RushHourMultiplier(t time.Time) float64 {
	h := t.Hour()
	weekend := t.Weekday() == time.Saturday || t.Weekday() == time.Sunday

	switch {
	case !weekend && h >= 7 && h < 10:
		return 1.5
	case !weekend && h >= 16 && h < 19:
		return 1.7
	case weekend && h >= 12 && h < 18:
		return 1.3
	case h >= 22 || h < 5:
		return 0.6
	}
	return 1.0
}

// Forecast projects current metrics over the 15, 30 and 60 minute horizons.
func Forecast(current domain.SegmentMetrics, now time.Time) []domain.ForecastPoint {
	m := RushHourMultiplier(now)
	out := make([]domain.ForecastPoint, 0, len(horizons))
	for _, h := range horizons {
		k := m * h.factor
		out = append(out, domain.ForecastPoint{
			Timeframe:       h.label,
			AverageSpeed:    math.Max(minForecastSpeed, current.AverageSpeed/k),
			CongestionLevel: math.Min(1, current.CongestionLevel*k),
			Confidence:      h.confidence,
		})
	}
	return out
}
