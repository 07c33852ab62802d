package analytics

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/lcalzada-xor/tmap/internal/core/ports"
)

const (
	// HotspotThreshold is the mean congestion at which a segment is reported as a hotspot.
	HotspotThreshold = 0.7
	// MaxHotspots caps the overview hotspot list.
	MaxHotspots = 10
	// AreaWindow is how far back area metrics look.
	AreaWindow = 15 * time.Minute
	// OverviewWindow is the trailing window of the overview and point metrics.
	OverviewWindow = time.Hour
)

var intervals = map[string]time.Duration{
	"5min":  5 * time.Minute,
	"15min": 15 * time.Minute,
	"hour":  time.Hour,
	"day":   24 * time.Hour,
}

// Service computes metrics views over stored points and records.
type Service struct {
	points  ports.PointReader
	metrics ports.MetricsStore
	now     func() time.Time
}

// NewService creates the analytics service.
func NewService(store ports.TrafficStore) *Service {
	return &Service{points: store, metrics: store, now: time.Now}
}

// PointMetrics summarizes the traffic points observed in the last hour.
func (s *Service) PointMetrics(ctx context.Context) (domain.PointMetrics, error) {
	now := s.now()
	points, err := s.points.PointsSince(ctx, now.Add(-OverviewWindow))
	if err != nil {
		return domain.PointMetrics{}, err
	}
	return domain.SummarizePoints(points, now), nil
}

// Record validates and stores a metrics record.
func (s *Service) Record(ctx context.Context, r domain.MetricsRecord) (domain.MetricsRecord, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}
	if r.Sensors == nil {
		r.Sensors = []domain.Sensor{}
	}
	if err := r.Validate(); err != nil {
		return domain.MetricsRecord{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := s.metrics.SaveMetrics(ctx, r); err != nil {
		return domain.MetricsRecord{}, err
	}
	return r, nil
}

// Area returns the latest record of every segment inside b from the last 15 minutes.
func (s *Service) Area(ctx context.Context, b domain.Bounds) ([]domain.MetricsRecord, error) {
	records, err := s.metrics.MetricsInBounds(ctx, b, s.now().Add(-AreaWindow))
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.MetricsRecord{}
	}
	return records, nil
}

// Overview builds the dashboard summary of the last hour.
func (s *Service) Overview(ctx context.Context) (domain.Overview, error) {
	now := s.now()
	since := now.Add(-OverviewWindow)

	records, err := s.metrics.MetricsSince(ctx, since)
	if err != nil {
		return domain.Overview{}, err
	}
	active, err := s.points.CountPointsSince(ctx, since)
	if err != nil {
		return domain.Overview{}, err
	}

	system := domain.AggregateMetrics(records)
	if system.Samples == 0 {
		system = domain.EmptyMetrics(now)
	}
	return domain.Overview{
		SystemMetrics:      system,
		ActivePoints:       active,
		CongestionHotspots: Hotspots(records),
	}, nil
}

// Hotspots groups records by road segment and returns the segments whose mean
// congestion reaches HotspotThreshold, most congested first.
func Hotspots(records []domain.MetricsRecord) []domain.Hotspot {
	type acc struct {
		sum    float64
		n      int
		latest domain.MetricsRecord
	}
	bySegment := make(map[string]*acc)
	for _, r := range records {
		if r.RoadSegmentID == "" {
			continue
		}
		a, ok := bySegment[r.RoadSegmentID]
		if !ok {
			a = &acc{latest: r}
			bySegment[r.RoadSegmentID] = a
		}
		a.sum += r.Metrics.CongestionLevel
		a.n++
		if r.Timestamp.After(a.latest.Timestamp) {
			a.latest = r
		}
	}

	hotspots := []domain.Hotspot{}
	for id, a := range bySegment {
		avg := a.sum / float64(a.n)
		if avg >= HotspotThreshold {
			hotspots = append(hotspots, domain.Hotspot{RoadSegmentID: id, AvgCongestion: avg, Location: a.latest.Location})
		}
	}
	sort.Slice(hotspots, func(i, j int) bool {
		if hotspots[i].AvgCongestion != hotspots[j].AvgCongestion {
			return hotspots[i].AvgCongestion > hotspots[j].AvgCongestion
		}
		return hotspots[i].RoadSegmentID < hotspots[j].RoadSegmentID
	})
	if len(hotspots) > MaxHotspots {
		hotspots = hotspots[:MaxHotspots]
	}
	return hotspots
}

// ParseInterval maps an interval name (5min, 15min, hour, day) to its width.
func ParseInterval(name string) (time.Duration, error) {
	if name == "" {
		return time.Hour, nil
	}
	d, ok := intervals[name]
	if !ok {
		return 0, fmt.Errorf("%w: unknown interval %q", domain.ErrInvalidInput, name)
	}
	return d, nil
}

// ParseDuration reads a lookback such as 24h, 7d or 1w.
func ParseDuration(v string) (time.Duration, error) {
	if v == "" {
		return 24 * time.Hour, nil
	}
	if len(v) < 2 {
		return 0, fmt.Errorf("%w: invalid duration %q", domain.ErrInvalidInput, v)
	}
	n, err := strconv.Atoi(v[:len(v)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid duration %q", domain.ErrInvalidInput, v)
	}
	switch strings.ToLower(v[len(v)-1:]) {
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "w":
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("%w: invalid duration %q", domain.ErrInvalidInput, v)
}

// Historical averages records into fixed-width buckets, oldest first.
// An empty segmentID covers every segment.
func (s *Service) Historical(ctx context.Context, segmentID, interval, duration string) ([]domain.HistoricalBucket, error) {
	width, err := ParseInterval(interval)
	if err != nil {
		return nil, err
	}
	lookback, err := ParseDuration(duration)
	if err != nil {
		return nil, err
	}

	since := s.now().Add(-lookback)
	var records []domain.MetricsRecord
	if segmentID == "" {
		records, err = s.metrics.MetricsSince(ctx, since)
	} else {
		records, err = s.metrics.MetricsForSegment(ctx, segmentID, since)
	}
	if err != nil {
		return nil, err
	}
	return Bucketize(records, width), nil
}

// Bucketize groups records by timestamp truncated to width and averages each group.
func Bucketize(records []domain.MetricsRecord, width time.Duration) []domain.HistoricalBucket {
	type acc struct {
		speed, vehicles, congestion, density float64
		n                                    int
	}
	groups := make(map[time.Time]*acc)
	for _, r := range records {
		key := r.Timestamp.UTC().Truncate(width)
		a, ok := groups[key]
		if !ok {
			a = &acc{}
			groups[key] = a
		}
		a.speed += r.Metrics.AverageSpeed
		a.vehicles += float64(r.Metrics.VehicleCount)
		a.congestion += r.Metrics.CongestionLevel
		a.density += r.Metrics.TrafficDensity
		a.n++
	}

	buckets := make([]domain.HistoricalBucket, 0, len(groups))
	for ts, a := range groups {
		n := float64(a.n)
		buckets = append(buckets, domain.HistoricalBucket{
			Timestamp:          ts,
			AverageSpeed:       a.speed / n,
			AvgVehicleCount:    a.vehicles / n,
			AvgCongestionLevel: a.congestion / n,
			AvgTrafficDensity:  a.density / n,
			Samples:            a.n,
		})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Timestamp.Before(buckets[j].Timestamp) })
	return buckets
}

// Predict forecasts a segment from its latest record.
func (s *Service) Predict(ctx context.Context, segmentID string) (domain.Prediction, error) {
	if strings.TrimSpace(segmentID) == "" {
		return domain.Prediction{}, fmt.Errorf("%w: roadSegmentId is required", domain.ErrInvalidInput)
	}
	latest, err := s.metrics.LatestMetricsForSegment(ctx, segmentID)
	if err != nil {
		return domain.Prediction{}, err
	}
	now := s.now()
	return domain.Prediction{
		RoadSegmentID:  segmentID,
		CurrentMetrics: latest.Metrics,
		Predictions:    Forecast(latest.Metrics, now),
		Timestamp:      now,
	}, nil
}
