package mock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/lcalzada-xor/tmap/internal/core/ports"
	"github.com/lcalzada-xor/tmap/internal/geo"
)

// Source labels points produced by the simulator.
const Source = "mock"

// alertChance is the probability that a step raises a new incident.
const alertChance = 0.05

// Recorder persists the segment metrics and incidents the simulator produces.
// storage.Store satisfies it.
type Recorder interface {
	SaveMetrics(ctx context.Context, r domain.MetricsRecord) error
	SaveAlert(ctx context.Context, a domain.Alert) error
}

// StepResult counts what a single simulation step produced.
type StepResult struct {
	Points  int
	Metrics int
	Alerts  int
}

// Simulator feeds generated sensor readings into a PointSink on a fixed interval.
// With a Recorder it also writes per-road metrics each step and an occasional alert.
type Simulator struct {
	generator   *DataGenerator
	sink        ports.PointSink
	recorder    Recorder
	interval    time.Duration
	scenario    string
	alertChance float64
	logger      *slog.Logger
}

// NewSimulator creates a simulator for scenario ("quiet", "rush" or anything else for normal).
// Sensors are placed around origin, or around Bengaluru when origin is nil.
// recorder may be nil, in which case only points are produced.
func NewSimulator(sink ports.PointSink, recorder Recorder, origin geo.Provider, scenario string, interval time.Duration, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	if scenario == "" {
		scenario = "normal"
	}
	center := BengaluruCenter
	if origin != nil {
		center = origin.GetLocation()
	}
	gen := NewDataGenerator(center, 11)
	gen.GenerateScenario(scenario)

	return &Simulator{
		generator:   gen,
		sink:        sink,
		recorder:    recorder,
		interval:    interval,
		scenario:    scenario,
		alertChance: alertChance,
		logger:      logger.With("component", "mock", "scenario", scenario),
	}
}

// Step submits one reading per sensor, then records road metrics and maybe an alert.
func (s *Simulator) Step(ctx context.Context) StepResult {
	var res StepResult
	for _, p := range s.generator.SimulateActivity() {
		if _, err := s.sink.Submit(Source, p); err != nil {
			s.logger.Debug("Mock point rejected", "id", p.ID, "error", err)
			continue
		}
		res.Points++
	}

	if s.recorder == nil {
		return res
	}

	for _, rec := range s.generator.GenerateMetrics() {
		if err := s.recorder.SaveMetrics(ctx, rec); err != nil {
			s.logger.Warn("Failed to save mock metrics", "segment", rec.RoadSegmentID, "error", err)
			continue
		}
		res.Metrics++
	}

	if s.generator.rand.Float64() < s.alertChance {
		a := s.generator.GenerateAlert()
		if err := s.recorder.SaveAlert(ctx, a); err != nil {
			s.logger.Warn("Failed to save mock alert", "id", a.ID, "error", err)
		} else {
			s.logger.Debug("Mock alert raised", "id", a.ID, "type", a.Type)
			res.Alerts++
		}
	}
	return res
}

// Run steps until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("mock interval must be positive")
	}
	s.logger.Info("Traffic simulator started", "sensors", len(s.generator.Sensors()), "interval", s.interval, "recording", s.recorder != nil)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Traffic simulator stopped")
			return nil
		case <-ticker.C:
			s.Step(ctx)
		}
	}
}
