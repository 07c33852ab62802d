package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/lcalzada-xor/tmap/internal/core/ports"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store implements ports.TrafficStore using GORM on SQLite or PostgreSQL.
type Store struct {
	db *gorm.DB
}

// Open connects to the database, installs tracing and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite, "":
		if dsn != ":memory:" && !isURI(dsn) {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("install tracing: %w", err)
	}
	if driver != DriverPostgres {
		// SQLite allows a single writer
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db)
}

// New wraps an open connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&PointModel{}, &MetricsModel{}, &AlertModel{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func isURI(dsn string) bool {
	return len(dsn) > 5 && dsn[:5] == "file:"
}

// wrap maps gorm failures onto the domain error taxonomy.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
}

func (s *Store) inBounds(tx *gorm.DB, b domain.Bounds) *gorm.DB {
	return tx.Where("lat >= ? AND lat <= ? AND lng >= ? AND lng <= ?", b.South, b.North, b.West, b.East)
}

// RecentPoints returns up to limit points, newest first.
func (s *Store) RecentPoints(ctx context.Context, limit int) ([]domain.TrafficPoint, error) {
	var models []PointModel
	err := s.db.WithContext(ctx).Order("timestamp desc").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, wrap("recent points", err)
	}
	return toPoints(models), nil
}

// PointsInBounds returns up to limit points inside b, edges included, newest first.
func (s *Store) PointsInBounds(ctx context.Context, b domain.Bounds, limit int) ([]domain.TrafficPoint, error) {
	var models []PointModel
	err := s.inBounds(s.db.WithContext(ctx), b).Order("timestamp desc").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, wrap("points in bounds", err)
	}
	return toPoints(models), nil
}

// PointsSince returns every point observed at or after since, newest first.
func (s *Store) PointsSince(ctx context.Context, since time.Time) ([]domain.TrafficPoint, error) {
	var models []PointModel
	err := s.db.WithContext(ctx).Where("timestamp >= ?", since.UTC()).Order("timestamp desc").Find(&models).Error
	if err != nil {
		return nil, wrap("points since", err)
	}
	return toPoints(models), nil
}

// CountPointsSince counts points observed at or after since.
func (s *Store) CountPointsSince(ctx context.Context, since time.Time) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&PointModel{}).Where("timestamp >= ?", since.UTC()).Count(&n).Error
	if err != nil {
		return 0, wrap("count points", err)
	}
	return int(n), nil
}

// SavePoint inserts or replaces one point.
func (s *Store) SavePoint(ctx context.Context, p domain.TrafficPoint) error {
	m := toPointModel(p)
	return wrap("save point", s.db.WithContext(ctx).Save(&m).Error)
}

// SavePointsBatch upserts points in a single transaction.
func (s *Store) SavePointsBatch(ctx context.Context, points []domain.TrafficPoint) error {
	if len(points) == 0 {
		return nil
	}
	models := make([]PointModel, len(points))
	for i, p := range points {
		models[i] = toPointModel(p)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			UpdateAll: true,
		}).CreateInBatches(models, 100).Error
	})
	return wrap("save points", err)
}

// SaveMetrics inserts a metrics record.
func (s *Store) SaveMetrics(ctx context.Context, r domain.MetricsRecord) error {
	m := toMetricsModel(r)
	return wrap("save metrics", s.db.WithContext(ctx).Create(&m).Error)
}

// LatestMetrics returns the newest record or nil when the table is empty.
func (s *Store) LatestMetrics(ctx context.Context) (*domain.MetricsRecord, error) {
	var models []MetricsModel
	err := s.db.WithContext(ctx).Order("timestamp desc").Limit(1).Find(&models).Error
	if err != nil {
		return nil, wrap("latest metrics", err)
	}
	if len(models) == 0 {
		return nil, nil
	}
	r := toMetrics(models[0])
	return &r, nil
}

// AggregateMetrics folds every record at or after since.
func (s *Store) AggregateMetrics(ctx context.Context, since time.Time) (domain.MetricsSnapshot, error) {
	records, err := s.MetricsSince(ctx, since)
	if err != nil {
		return domain.MetricsSnapshot{}, err
	}
	return domain.AggregateMetrics(records), nil
}

// MetricsSince returns every record at or after since, oldest first.
func (s *Store) MetricsSince(ctx context.Context, since time.Time) ([]domain.MetricsRecord, error) {
	var models []MetricsModel
	err := s.db.WithContext(ctx).Where("timestamp >= ?", since.UTC()).Order("timestamp asc").Find(&models).Error
	if err != nil {
		return nil, wrap("metrics since", err)
	}
	return toMetricsList(models), nil
}

// MetricsInBounds returns the newest record per road segment inside b since the
// given time. Records without a segment are returned individually.
func (s *Store) MetricsInBounds(ctx context.Context, b domain.Bounds, since time.Time) ([]domain.MetricsRecord, error) {
	var models []MetricsModel
	err := s.inBounds(s.db.WithContext(ctx), b).
		Where("timestamp >= ?", since.UTC()).
		Order("timestamp desc").
		Find(&models).Error
	if err != nil {
		return nil, wrap("metrics in bounds", err)
	}

	seen := make(map[string]bool)
	out := make([]domain.MetricsRecord, 0, len(models))
	for _, m := range models {
		if m.RoadSegmentID != "" {
			if seen[m.RoadSegmentID] {
				continue
			}
			seen[m.RoadSegmentID] = true
		}
		out = append(out, toMetrics(m))
	}
	return out, nil
}

// MetricsForSegment returns the records of one segment since the given time, oldest first.
func (s *Store) MetricsForSegment(ctx context.Context, segmentID string, since time.Time) ([]domain.MetricsRecord, error) {
	var models []MetricsModel
	err := s.db.WithContext(ctx).
		Where("road_segment_id = ? AND timestamp >= ?", segmentID, since.UTC()).
		Order("timestamp asc").
		Find(&models).Error
	if err != nil {
		return nil, wrap("segment metrics", err)
	}
	return toMetricsList(models), nil
}

// LatestMetricsForSegment returns the newest record of a segment or domain.ErrNotFound.
func (s *Store) LatestMetricsForSegment(ctx context.Context, segmentID string) (*domain.MetricsRecord, error) {
	var m MetricsModel
	err := s.db.WithContext(ctx).
		Where("road_segment_id = ?", segmentID).
		Order("timestamp desc").
		First(&m).Error
	if err != nil {
		return nil, wrap("latest segment metrics", err)
	}
	r := toMetrics(m)
	return &r, nil
}

// SaveAlert inserts a new alert.
func (s *Store) SaveAlert(ctx context.Context, a domain.Alert) error {
	m := toAlertModel(a)
	return wrap("save alert", s.db.WithContext(ctx).Create(&m).Error)
}

// GetAlert fetches an alert by id.
func (s *Store) GetAlert(ctx context.Context, id string) (*domain.Alert, error) {
	var m AlertModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, wrap("get alert", err)
	}
	a := toAlert(m)
	return &a, nil
}

// UpdateAlert overwrites every column of an existing alert.
func (s *Store) UpdateAlert(ctx context.Context, a domain.Alert) error {
	m := toAlertModel(a)
	res := s.db.WithContext(ctx).Model(&AlertModel{}).Where("id = ?", a.ID).Select("*").Updates(&m)
	if res.Error != nil {
		return wrap("update alert", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update alert %s: %w", a.ID, domain.ErrNotFound)
	}
	return nil
}

func activeAt(tx *gorm.DB, now time.Time) *gorm.DB {
	return tx.Where("end_time IS NULL OR end_time > ?", now.UTC())
}

// ActiveAlerts returns alerts whose end time is unset or after now.
func (s *Store) ActiveAlerts(ctx context.Context, now time.Time) ([]domain.Alert, error) {
	var models []AlertModel
	err := activeAt(s.db.WithContext(ctx), now).Order("start_time desc").Find(&models).Error
	if err != nil {
		return nil, wrap("active alerts", err)
	}
	return toAlerts(models), nil
}

// ActiveAlertsInBounds is ActiveAlerts restricted to b.
func (s *Store) ActiveAlertsInBounds(ctx context.Context, b domain.Bounds, now time.Time) ([]domain.Alert, error) {
	var models []AlertModel
	err := s.inBounds(activeAt(s.db.WithContext(ctx), now), b).Order("start_time desc").Find(&models).Error
	if err != nil {
		return nil, wrap("active alerts in bounds", err)
	}
	return toAlerts(models), nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return wrap("ping", err)
	}
	return wrap("ping", sqlDB.PingContext(ctx))
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure interface compliance
var _ ports.TrafficStore = (*Store)(nil)
