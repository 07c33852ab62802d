package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// WSConnections tracks the number of registered realtime connections
	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tmap",
			Name:      "ws_connections",
			Help:      "Number of live realtime connections",
		},
	)

	// BroadcastTicks counts broadcast ticks by outcome (ok, skipped)
	BroadcastTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmap",
			Name:      "broadcast_ticks_total",
			Help:      "Total number of broadcast ticks",
		},
		[]string{"result"},
	)

	// BroadcastDuration observes the wall time of each tick
	BroadcastDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tmap",
			Name:      "broadcast_tick_seconds",
			Help:      "Duration of broadcast ticks",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// PushFailures counts failed pushes to a single connection
	PushFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmap",
			Name:      "push_failures_total",
			Help:      "Total number of failed pushes to clients",
		},
		[]string{"event"},
	)

	// StoreErrors counts failed store queries
	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmap",
			Name:      "store_errors_total",
			Help:      "Total number of failed store operations",
		},
		[]string{"op"},
	)

	// PointsIngested counts traffic points accepted for persistence
	PointsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmap",
			Name:      "points_ingested_total",
			Help:      "Total number of traffic points accepted by the ingest pipeline",
		},
		[]string{"source"},
	)

	// PointsDropped counts points rejected because the ingest queue was full
	PointsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tmap",
			Name:      "points_dropped_total",
			Help:      "Total number of traffic points dropped by the ingest pipeline",
		},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry
// This function is idempotent and can be called multiple times safely
func InitMetrics() {
	once.Do(func() {
		// Errors are ignored so a second registry user does not panic
		prometheus.DefaultRegisterer.Register(WSConnections)
		prometheus.DefaultRegisterer.Register(BroadcastTicks)
		prometheus.DefaultRegisterer.Register(BroadcastDuration)
		prometheus.DefaultRegisterer.Register(PushFailures)
		prometheus.DefaultRegisterer.Register(StoreErrors)
		prometheus.DefaultRegisterer.Register(PointsIngested)
		prometheus.DefaultRegisterer.Register(PointsDropped)
	})
}

// ConnectionGauge keeps WSConnections in sync with the connection registry.
type ConnectionGauge struct{}

func (ConnectionGauge) OnRegistered(_ string, total int)   { WSConnections.Set(float64(total)) }
func (ConnectionGauge) OnUnregistered(_ string, total int) { WSConnections.Set(float64(total)) }
