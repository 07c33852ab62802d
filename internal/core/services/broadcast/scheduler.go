package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/lcalzada-xor/tmap/internal/core/ports"
	"github.com/lcalzada-xor/tmap/internal/core/services/registry"
	"github.com/lcalzada-xor/tmap/internal/telemetry"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultConcurrency = 8
)

// State is the lifecycle state of a Scheduler.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Connections is the registry view the scheduler iterates each tick.
type Connections interface {
	List() []registry.Entry
	Subscription(id string) (domain.Subscription, bool)
}

// Config tunes the scheduler.
type Config struct {
	Interval time.Duration
	// Limit is passed to every snapshot query.
	Limit int
	// Concurrency caps in-flight area queries and pushes per tick.
	Concurrency int
}

// Scheduler pushes fresh snapshots to every connection on a fixed interval.
type Scheduler struct {
	conns     Connections
	snapshots ports.SnapshotService
	health    ports.HealthReporter
	cfg       Config
	logger    *slog.Logger

	mu     sync.Mutex
	state  State
	run    int
	cancel context.CancelFunc
}

// NewScheduler creates a stopped scheduler. health may be nil.
func NewScheduler(conns Connections, snapshots ports.SnapshotService, health ports.HealthReporter, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		conns:     conns,
		snapshots: snapshots,
		health:    health,
		cfg:       cfg,
		logger:    logger,
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins ticking. Calling Start on a running scheduler does nothing.
// Cancelling ctx has the same effect as Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.run++
	s.cancel = cancel
	s.state = Running
	go s.loop(loopCtx, s.run)

	s.logger.Info("Broadcast scheduler started", "interval", s.cfg.Interval)
}

// Stop cancels the timer. It does not wait for an in-flight tick, but no new
// tick starts once Stop has returned. Stopping a stopped scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Stopped {
		return
	}
	s.cancel()
	s.cancel = nil
	s.state = Stopped
	s.logger.Info("Broadcast scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, run int) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.markStopped(run)
			return
		case <-ticker.C:
			// select picks randomly when both cases are ready.
			if ctx.Err() != nil {
				s.markStopped(run)
				return
			}
			_ = s.Tick(ctx)
		}
	}
}

// markStopped handles the parent context being cancelled without Stop.
func (s *Scheduler) markStopped(run int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Running && s.run == run {
		s.cancel()
		s.cancel = nil
		s.state = Stopped
	}
}

// Tick runs one broadcast round. It returns an error wrapping
// domain.ErrStoreUnavailable when the global snapshot could not be computed,
// in which case nothing was pushed.
func (s *Scheduler) Tick(ctx context.Context) error {
	start := time.Now()
	defer func() { telemetry.BroadcastDuration.Observe(time.Since(start).Seconds()) }()

	ctx, span := otel.Tracer(telemetry.ServiceName).Start(ctx, "broadcast.tick")
	defer span.End()

	entries := s.conns.List()
	span.SetAttributes(attribute.Int("connections", len(entries)))

	global, err := s.snapshots.GlobalSnapshot(ctx, s.cfg.Limit)
	if err != nil {
		s.logger.Warn("Broadcast tick skipped", "error", err)
		telemetry.BroadcastTicks.WithLabelValues("skipped").Inc()
		span.SetStatus(codes.Error, err.Error())
		s.setServing(false)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, e := range entries {
		if e.Subscription.IsArea() {
			g.Go(func() error {
				s.pushArea(gctx, e)
				return nil
			})
			continue
		}
		g.Go(func() error {
			s.push(e, domain.EventTrafficUpdate, global.Points)
			s.push(e, domain.EventMetricsUpdate, global.Metrics)
			return nil
		})
	}
	_ = g.Wait()

	telemetry.BroadcastTicks.WithLabelValues("ok").Inc()
	s.setServing(true)
	return nil
}

func (s *Scheduler) pushArea(ctx context.Context, e registry.Entry) {
	points, err := s.snapshots.AreaSnapshot(ctx, e.Subscription.Area, s.cfg.Limit)
	if err != nil {
		s.logger.Warn("Area snapshot failed", "conn", e.ID, "error", err)
		return
	}
	// The connection may have gone away or changed its area while the query was in flight.
	current, ok := s.conns.Subscription(e.ID)
	if !ok {
		s.logger.Debug("Dropping area push for departed connection", "conn", e.ID)
		return
	}
	if current != e.Subscription {
		s.logger.Debug("Dropping stale area push", "conn", e.ID, "subscription", current)
		return
	}
	s.push(e, domain.EventAreaTrafficData, points)
}

func (s *Scheduler) push(e registry.Entry, event string, payload any) {
	if err := e.Client.Send(event, payload); err != nil {
		telemetry.PushFailures.WithLabelValues(event).Inc()
		s.logger.Warn("Push failed", "conn", e.ID, "event", event, "error", errors.Join(domain.ErrTransportPush, err))
	}
}

func (s *Scheduler) setServing(ok bool) {
	if s.health != nil {
		s.health.SetServing(ok)
	}
}
