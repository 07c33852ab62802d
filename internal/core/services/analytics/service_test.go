package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/lcalzada-xor/tmap/internal/core/services/servicetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Monday 08:30 UTC
var now = time.Date(2024, 3, 4, 8, 30, 0, 0, time.UTC)

func newService(store *servicetest.MockTrafficStore) *Service {
	s := NewService(store)
	s.now = func() time.Time { return now }
	return s
}

func record(seg string, ts time.Time, speed, congestion float64, vehicles int) domain.MetricsRecord {
	return domain.MetricsRecord{
		ID:            fmt.Sprintf("%s-%d", seg, ts.Unix()),
		RoadSegmentID: seg,
		Timestamp:     ts,
		Location:      domain.Location{Lat: 12.97, Lng: 77.59},
		Metrics:       domain.SegmentMetrics{AverageSpeed: speed, CongestionLevel: congestion, VehicleCount: vehicles, TrafficDensity: 10},
	}
}

func TestRushHourMultiplier(t *testing.T) {
	monday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	saturday := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		at   time.Time
		want float64
	}{
		{monday.Add(7 * time.Hour), 1.5},
		{monday.Add(9*time.Hour + 59*time.Minute), 1.5},
		{monday.Add(10 * time.Hour), 1.0},
		{monday.Add(16 * time.Hour), 1.7},
		{monday.Add(19 * time.Hour), 1.0},
		{monday.Add(23 * time.Hour), 0.6},
		{monday.Add(4 * time.Hour), 0.6},
		{monday.Add(5 * time.Hour), 1.0},
		{saturday.Add(8 * time.Hour), 1.0},
		{saturday.Add(13 * time.Hour), 1.3},
		{saturday.Add(22 * time.Hour), 0.6},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RushHourMultiplier(tc.at), tc.at.String())
	}
}

func TestForecast(t *testing.T) {
	current := domain.SegmentMetrics{AverageSpeed: 60, CongestionLevel: 0.7}
	got := Forecast(current, now) // multiplier 1.5

	require.Len(t, got, 3)
	assert.Equal(t, "15min", got[0].Timeframe)
	assert.InDelta(t, 60/(1.5*0.9), got[0].AverageSpeed, 1e-9)
	assert.InDelta(t, 0.7*1.5*0.9, got[0].CongestionLevel, 1e-9)
	assert.Equal(t, 0.85, got[0].Confidence)
	assert.InDelta(t, 40, got[1].AverageSpeed, 1e-9)
	assert.Equal(t, 1.0, got[2].CongestionLevel, "congestion is capped at 1")

	slow := Forecast(domain.SegmentMetrics{AverageSpeed: 3}, now)
	for _, f := range slow {
		assert.Equal(t, 5.0, f.AverageSpeed, "speed floor")
	}
}

func TestService_Predict(t *testing.T) {
	rec := record("seg-1", now.Add(-time.Minute), 60, 0.6, 100)
	store := new(servicetest.MockTrafficStore)
	store.On("LatestMetricsForSegment", mock.Anything, "seg-1").Return(&rec, nil)
	store.On("LatestMetricsForSegment", mock.Anything, "missing").Return(nil, domain.ErrNotFound)

	p, err := newService(store).Predict(context.Background(), "seg-1")
	require.NoError(t, err)
	assert.Equal(t, "seg-1", p.RoadSegmentID)
	assert.Equal(t, rec.Metrics, p.CurrentMetrics)
	assert.Len(t, p.Predictions, 3)
	assert.Equal(t, now, p.Timestamp)

	_, err = newService(store).Predict(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = newService(store).Predict(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestHotspots(t *testing.T) {
	var records []domain.MetricsRecord
	for i := 0; i < 12; i++ {
		seg := fmt.Sprintf("seg-%02d", i)
		records = append(records, record(seg, now, 20, 0.7+float64(i)*0.01, 10))
	}
	records = append(records,
		record("calm", now, 50, 0.2, 5),
		record("split", now.Add(-time.Minute), 30, 1.0, 5),
		record("split", now, 30, 0.3, 5),
		record("", now, 30, 1.0, 5),
	)

	got := Hotspots(records)
	require.Len(t, got, MaxHotspots)
	assert.Equal(t, "seg-11", got[0].RoadSegmentID)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].AvgCongestion, got[i].AvgCongestion)
	}
	for _, h := range got {
		assert.NotEqual(t, "calm", h.RoadSegmentID)
		assert.NotEqual(t, "split", h.RoadSegmentID, "mean of 1.0 and 0.3 is below threshold")
		assert.NotEmpty(t, h.RoadSegmentID)
	}
}

func TestService_Overview(t *testing.T) {
	since := now.Add(-time.Hour)
	records := []domain.MetricsRecord{
		record("a", now.Add(-10*time.Minute), 20, 0.9, 100),
		record("b", now.Add(-5*time.Minute), 40, 0.3, 50),
	}
	store := new(servicetest.MockTrafficStore)
	store.On("MetricsSince", mock.Anything, since).Return(records, nil)
	store.On("CountPointsSince", mock.Anything, since).Return(17, nil)

	o, err := newService(store).Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 17, o.ActivePoints)
	assert.InDelta(t, 30, o.SystemMetrics.AvgSpeed, 1e-9)
	assert.Equal(t, 150, o.SystemMetrics.TotalVehicles)
	require.Len(t, o.CongestionHotspots, 1)
	assert.Equal(t, "a", o.CongestionHotspots[0].RoadSegmentID)
}

func TestService_OverviewEmpty(t *testing.T) {
	store := new(servicetest.MockTrafficStore)
	store.On("MetricsSince", mock.Anything, mock.Anything).Return(nil, nil)
	store.On("CountPointsSince", mock.Anything, mock.Anything).Return(0, nil)

	o, err := newService(store).Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now, o.SystemMetrics.LastUpdate)
	assert.NotNil(t, o.CongestionHotspots)
}

func TestParseDurationAndInterval(t *testing.T) {
	d, err := ParseDuration("24h")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)

	d, err = ParseDuration("7d")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	d, err = ParseDuration("1w")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	for _, bad := range []string{"h", "0h", "-2d", "3y", "abc"} {
		_, err = ParseDuration(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, bad)
	}

	w, err := ParseInterval("15min")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, w)

	_, err = ParseInterval("fortnight")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestService_Historical(t *testing.T) {
	base := time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC)
	records := []domain.MetricsRecord{
		record("seg", base.Add(1*time.Minute), 30, 0.2, 10),
		record("seg", base.Add(4*time.Minute), 50, 0.4, 20),
		record("seg", base.Add(16*time.Minute), 20, 0.8, 40),
	}
	store := new(servicetest.MockTrafficStore)
	store.On("MetricsForSegment", mock.Anything, "seg", now.Add(-24*time.Hour)).Return(records, nil)

	buckets, err := newService(store).Historical(context.Background(), "seg", "15min", "24h")
	require.NoError(t, err)
	require.Len(t, buckets, 2)

	assert.Equal(t, base, buckets[0].Timestamp)
	assert.Equal(t, 2, buckets[0].Samples)
	assert.InDelta(t, 40, buckets[0].AverageSpeed, 1e-9)
	assert.InDelta(t, 15, buckets[0].AvgVehicleCount, 1e-9)
	assert.InDelta(t, 0.3, buckets[0].AvgCongestionLevel, 1e-9)

	assert.Equal(t, base.Add(15*time.Minute), buckets[1].Timestamp)
	assert.Equal(t, 1, buckets[1].Samples)
}

func TestService_HistoricalAllSegments(t *testing.T) {
	store := new(servicetest.MockTrafficStore)
	store.On("MetricsSince", mock.Anything, now.Add(-7*24*time.Hour)).Return(nil, nil)

	buckets, err := newService(store).Historical(context.Background(), "", "day", "1w")
	require.NoError(t, err)
	assert.Empty(t, buckets)
}

func TestService_Record(t *testing.T) {
	store := new(servicetest.MockTrafficStore)
	store.On("SaveMetrics", mock.Anything, mock.AnythingOfType("domain.MetricsRecord")).Return(nil)

	in := record("seg", time.Time{}, 30, 0.5, 10)
	in.ID = ""
	got, err := newService(store).Record(context.Background(), in)
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, now, got.Timestamp)

	in.Metrics.CongestionLevel = 42
	_, err = newService(store).Record(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestService_PointMetrics(t *testing.T) {
	store := new(servicetest.MockTrafficStore)
	store.On("PointsSince", mock.Anything, now.Add(-time.Hour)).Return([]domain.TrafficPoint{
		{SpeedKmph: 40, Status: domain.StatusLow},
		{SpeedKmph: 20, Status: domain.StatusHigh},
	}, nil)

	m, err := newService(store).PointMetrics(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 30, m.AverageSpeed, 1e-9)
	assert.Equal(t, 2, m.VehicleCount)
	assert.InDelta(t, 0.5, m.CongestionLevel, 1e-9)
}
