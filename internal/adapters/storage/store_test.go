package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var base = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

// setupInMemoryDB creates a migrated Store backed by a private in-memory database.
func setupInMemoryDB(t *testing.T) *Store {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store, err := New(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func point(id string, lat, lng float64, ts time.Time) domain.TrafficPoint {
	return domain.TrafficPoint{
		ID:        id,
		Location:  domain.Location{Lat: lat, Lng: lng},
		Status:    domain.StatusMedium,
		SpeedKmph: 30,
		Timestamp: ts,
		RoadName:  "MG Road",
	}
}

func TestStore_PointsInBoundsInclusive(t *testing.T) {
	store := setupInMemoryDB(t)
	ctx := context.Background()

	b := domain.Bounds{North: 13, South: 12, East: 78, West: 77}
	points := []domain.TrafficPoint{
		point("inside", 12.5, 77.5, base),
		point("north-edge", 13, 77.5, base.Add(time.Second)),
		point("corner", 12, 77, base.Add(2*time.Second)),
		point("outside-lat", 13.0001, 77.5, base.Add(3*time.Second)),
		point("outside-lng", 12.5, 76.9, base.Add(4*time.Second)),
	}
	require.NoError(t, store.SavePointsBatch(ctx, points))

	got, err := store.PointsInBounds(ctx, b, 10)
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, p := range got {
		ids[i] = p.ID
		assert.True(t, b.Contains(p.Location), p.ID)
	}
	assert.Equal(t, []string{"corner", "north-edge", "inside"}, ids, "newest first, edges included")

	limited, err := store.PointsInBounds(ctx, b, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "corner", limited[0].ID)

	empty, err := store.PointsInBounds(ctx, domain.Bounds{North: -10, South: -11, East: 1, West: 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_RecentPoints(t *testing.T) {
	store := setupInMemoryDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.SavePoint(ctx, point(fmt.Sprintf("p%d", i), 12.9, 77.6, base.Add(time.Duration(i)*time.Minute))))
	}

	got, err := store.RecentPoints(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "p4", got[0].ID)
	assert.Equal(t, "p2", got[2].ID)
	assert.Equal(t, base.Add(4*time.Minute), got[0].Timestamp)
	assert.Equal(t, domain.StatusMedium, got[0].Status)
	assert.Equal(t, "MG Road", got[0].RoadName)
}

func TestStore_SavePointsBatchUpserts(t *testing.T) {
	store := setupInMemoryDB(t)
	ctx := context.Background()

	require.NoError(t, store.SavePointsBatch(ctx, []domain.TrafficPoint{point("a", 12.9, 77.6, base)}))

	updated := point("a", 12.9, 77.6, base)
	updated.Status = domain.StatusSevere
	require.NoError(t, store.SavePointsBatch(ctx, []domain.TrafficPoint{updated, point("b", 12.9, 77.6, base)}))
	require.NoError(t, store.SavePointsBatch(ctx, nil))

	got, err := store.RecentPoints(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, p := range got {
		if p.ID == "a" {
			assert.Equal(t, domain.StatusSevere, p.Status)
		}
	}
}

func TestStore_PointsSince(t *testing.T) {
	store := setupInMemoryDB(t)
	ctx := context.Background()

	require.NoError(t, store.SavePointsBatch(ctx, []domain.TrafficPoint{
		point("old", 12.9, 77.6, base.Add(-2*time.Hour)),
		point("edge", 12.9, 77.6, base.Add(-time.Hour)),
		point("new", 12.9, 77.6, base),
	}))

	n, err := store.CountPointsSince(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.PointsSince(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
}

func metricsRecord(id, seg string, ts time.Time, speed float64) domain.MetricsRecord {
	return domain.MetricsRecord{
		ID:            id,
		Timestamp:     ts,
		Location:      domain.Location{Lat: 12.97, Lng: 77.59},
		RoadSegmentID: seg,
		Metrics:       domain.SegmentMetrics{AverageSpeed: speed, VehicleCount: 10, CongestionLevel: 0.5, TrafficDensity: 4},
		Sensors:       []domain.Sensor{{ID: "s-" + id, Type: "loop", Status: domain.SensorActive}},
	}
}

func TestStore_LatestMetrics(t *testing.T) {
	store := setupInMemoryDB(t)
	ctx := context.Background()

	latest, err := store.LatestMetrics(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest, "empty table yields no record")

	require.NoError(t, store.SaveMetrics(ctx, metricsRecord("m1", "seg", base, 40)))
	require.NoError(t, store.SaveMetrics(ctx, metricsRecord("m2", "seg", base.Add(time.Minute), 20)))

	latest, err = store.LatestMetrics(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "m2", latest.ID)
	require.Len(t, latest.Sensors, 1)
	assert.Equal(t, "s-m2", latest.Sensors[0].ID)

	snap, err := store.AggregateMetrics(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Samples)
	assert.InDelta(t, 30, snap.AvgSpeed, 1e-9)
	assert.Equal(t, 20, snap.TotalVehicles)
	assert.Equal(t, 2, snap.SensorCount)
	assert.Equal(t, base.Add(time.Minute), snap.LastUpdate)

	snap, err = store.AggregateMetrics(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, snap.Samples)
}

func TestStore_MetricsInBoundsLatestPerSegment(t *testing.T) {
	store := setupInMemoryDB(t)
	ctx := context.Background()

	far := metricsRecord("far", "seg-far", base, 50)
	far.Location = domain.Location{Lat: 28.6, Lng: 77.2}
	for _, r := range []domain.MetricsRecord{
		metricsRecord("a-old", "seg-a", base, 10),
		metricsRecord("a-new", "seg-a", base.Add(time.Minute), 20),
		metricsRecord("b", "seg-b", base, 30),
		metricsRecord("anon-1", "", base, 5),
		metricsRecord("anon-2", "", base, 6),
		metricsRecord("stale", "seg-c", base.Add(-time.Hour), 6),
		far,
	} {
		require.NoError(t, store.SaveMetrics(ctx, r))
	}

	b := domain.Bounds{North: 13, South: 12, East: 78, West: 77}
	got, err := store.MetricsInBounds(ctx, b, base.Add(-15*time.Minute))
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, r := range got {
		ids[r.ID] = true
	}
	assert.Equal(t, map[string]bool{"a-new": true, "b": true, "anon-1": true, "anon-2": true}, ids)
}

func TestStore_SegmentMetrics(t *testing.T) {
	store := setupInMemoryDB(t)
	ctx := context.Background()

	_, err := store.LatestMetricsForSegment(ctx, "seg")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.SaveMetrics(ctx, metricsRecord("m2", "seg", base.Add(time.Minute), 20)))
	require.NoError(t, store.SaveMetrics(ctx, metricsRecord("m1", "seg", base, 40)))
	require.NoError(t, store.SaveMetrics(ctx, metricsRecord("x", "other", base, 40)))

	latest, err := store.LatestMetricsForSegment(ctx, "seg")
	require.NoError(t, err)
	assert.Equal(t, "m2", latest.ID)

	records, err := store.MetricsForSegment(ctx, "seg", base)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "m1", records[0].ID, "oldest first")
}

func TestStore_Alerts(t *testing.T) {
	store := setupInMemoryDB(t)
	ctx := context.Background()
	now := base.Add(time.Hour)
	radius := 250.0

	open := domain.Alert{
		ID:            "open",
		Type:          domain.AlertAccident,
		Location:      domain.Location{Lat: 12.97, Lng: 77.59},
		Description:   "Two-car collision",
		StartTime:     base,
		Severity:      domain.SeverityMajor,
		AffectedRoads: []string{"MG Road"},
		ImpactRadius:  &radius,
		Source:        domain.SourceUser,
		Impact:        &domain.TrafficImpact{EstimatedDelay: 12, AlternativeRoutes: true},
	}
	future := now.Add(time.Hour)
	scheduled := open
	scheduled.ID = "scheduled"
	scheduled.Location = domain.Location{Lat: 28.6, Lng: 77.2}
	scheduled.EndTime = &future
	past := base.Add(30 * time.Minute)
	closed := open
	closed.ID = "closed"
	closed.EndTime = &past

	for _, a := range []domain.Alert{open, scheduled, closed} {
		require.NoError(t, store.SaveAlert(ctx, a))
	}

	got, err := store.GetAlert(ctx, "open")
	require.NoError(t, err)
	assert.Equal(t, open.AffectedRoads, got.AffectedRoads)
	assert.Equal(t, open.Impact, got.Impact)
	require.NotNil(t, got.ImpactRadius)
	assert.Equal(t, radius, *got.ImpactRadius)
	assert.Nil(t, got.EndTime)

	active, err := store.ActiveAlerts(ctx, now)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	inArea, err := store.ActiveAlertsInBounds(ctx, domain.Bounds{North: 13, South: 12, East: 78, West: 77}, now)
	require.NoError(t, err)
	require.Len(t, inArea, 1)
	assert.Equal(t, "open", inArea[0].ID)

	open.EndTime = &past
	open.Description = "Cleared"
	require.NoError(t, store.UpdateAlert(ctx, open))

	got, err = store.GetAlert(ctx, "open")
	require.NoError(t, err)
	assert.Equal(t, "Cleared", got.Description)
	require.NotNil(t, got.EndTime)
	assert.Equal(t, past, *got.EndTime)

	active, err = store.ActiveAlerts(ctx, now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "scheduled", active[0].ID)
}

func TestStore_AlertNotFound(t *testing.T) {
	store := setupInMemoryDB(t)
	ctx := context.Background()

	_, err := store.GetAlert(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = store.UpdateAlert(ctx, domain.Alert{ID: "missing", StartTime: base})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ClosedIsUnavailable(t *testing.T) {
	store := setupInMemoryDB(t)
	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close())

	_, err := store.RecentPoints(ctx, 10)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, store.Ping(ctx), domain.ErrStoreUnavailable)
}

func TestOpen(t *testing.T) {
	_, err := Open("mysql", "whatever")
	assert.Error(t, err)

	store, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer store.Close()
	assert.NoError(t, store.Ping(context.Background()))
}
