package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/lcalzada-xor/tmap/internal/core/services/registry"
	"github.com/lcalzada-xor/tmap/internal/core/services/servicetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshots struct {
	mu       sync.Mutex
	global   func() (domain.Snapshot, error)
	area     func(ctx context.Context, b domain.Bounds) ([]domain.TrafficPoint, error)
	globalN  atomic.Int32
	areaArgs []domain.Bounds
}

func (f *fakeSnapshots) GlobalSnapshot(ctx context.Context, limit int) (domain.Snapshot, error) {
	f.globalN.Add(1)
	return f.global()
}

func (f *fakeSnapshots) AreaSnapshot(ctx context.Context, b domain.Bounds, limit int) ([]domain.TrafficPoint, error) {
	f.mu.Lock()
	f.areaArgs = append(f.areaArgs, b)
	f.mu.Unlock()
	return f.area(ctx, b)
}

type fakeHealth struct {
	mu      sync.Mutex
	history []bool
}

func (h *fakeHealth) SetServing(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, ok)
}

func (h *fakeHealth) last() (bool, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.history) == 0 {
		return false, false
	}
	return h.history[len(h.history)-1], true
}

var (
	boundsX     = domain.Bounds{North: 13.0, South: 12.9, East: 77.7, West: 77.5}
	globalPts   = []domain.TrafficPoint{{ID: "g1"}, {ID: "g2"}, {ID: "g3"}}
	areaPts     = []domain.TrafficPoint{{ID: "g1"}}
	globalMetrs = domain.MetricsSnapshot{AvgSpeed: 40, TotalVehicles: 9}
)

func okSnapshots() *fakeSnapshots {
	return &fakeSnapshots{
		global: func() (domain.Snapshot, error) {
			return domain.Snapshot{Points: globalPts, Metrics: globalMetrs}, nil
		},
		area: func(context.Context, domain.Bounds) ([]domain.TrafficPoint, error) {
			return areaPts, nil
		},
	}
}

func register(t *testing.T, reg *registry.ConnectionRegistry, c *servicetest.FakeClient, sub domain.Subscription) {
	t.Helper()
	require.NoError(t, reg.Register(c.ID(), c))
	require.NoError(t, reg.SetSubscription(c.ID(), sub))
}

func TestScheduler_TickFanOutByScope(t *testing.T) {
	reg := registry.NewConnectionRegistry()
	c1 := servicetest.NewFakeClient("c1")
	c2 := servicetest.NewFakeClient("c2")
	c3 := servicetest.NewFakeClient("c3")
	register(t, reg, c1, domain.GlobalSubscription())
	register(t, reg, c2, domain.AreaSubscription(boundsX))
	register(t, reg, c3, domain.NoSubscription())

	snaps := okSnapshots()
	s := NewScheduler(reg, snaps, nil, Config{Limit: 100}, nil)

	require.NoError(t, s.Tick(context.Background()))

	assert.ElementsMatch(t, []string{domain.EventTrafficUpdate, domain.EventMetricsUpdate}, c1.Events())
	assert.ElementsMatch(t, []string{domain.EventTrafficUpdate, domain.EventMetricsUpdate}, c3.Events())
	assert.Equal(t, []string{domain.EventAreaTrafficData}, c2.Events())

	msg, _ := c1.Last(domain.EventTrafficUpdate)
	assert.Len(t, msg.Payload, 3)
	msg, _ = c2.Last(domain.EventAreaTrafficData)
	assert.Len(t, msg.Payload, 1)

	assert.EqualValues(t, 1, snaps.globalN.Load(), "global snapshot is computed once per tick")
}

func TestScheduler_IdenticalBoundsAreNotDeduplicated(t *testing.T) {
	reg := registry.NewConnectionRegistry()
	register(t, reg, servicetest.NewFakeClient("a"), domain.AreaSubscription(boundsX))
	register(t, reg, servicetest.NewFakeClient("b"), domain.AreaSubscription(boundsX))

	snaps := okSnapshots()
	s := NewScheduler(reg, snaps, nil, Config{}, nil)
	require.NoError(t, s.Tick(context.Background()))

	snaps.mu.Lock()
	defer snaps.mu.Unlock()
	assert.Len(t, snaps.areaArgs, 2)
}

func TestScheduler_PushFailureIsolation(t *testing.T) {
	reg := registry.NewConnectionRegistry()
	bad := servicetest.NewFailingClient("a")
	b := servicetest.NewFakeClient("b")
	c := servicetest.NewFakeClient("c")
	register(t, reg, bad, domain.GlobalSubscription())
	register(t, reg, b, domain.GlobalSubscription())
	register(t, reg, c, domain.AreaSubscription(boundsX))

	s := NewScheduler(reg, okSnapshots(), nil, Config{}, nil)
	require.NoError(t, s.Tick(context.Background()))

	assert.Contains(t, b.Events(), domain.EventTrafficUpdate)
	assert.Contains(t, c.Events(), domain.EventAreaTrafficData)
	assert.True(t, reg.Has("a"), "a failed push leaves the registry untouched")
}

func TestScheduler_AreaQueryFailureSkipsOnlyThatConnection(t *testing.T) {
	reg := registry.NewConnectionRegistry()
	g := servicetest.NewFakeClient("g")
	a := servicetest.NewFakeClient("a")
	register(t, reg, g, domain.GlobalSubscription())
	register(t, reg, a, domain.AreaSubscription(boundsX))

	snaps := okSnapshots()
	snaps.area = func(context.Context, domain.Bounds) ([]domain.TrafficPoint, error) {
		return nil, fmt.Errorf("query: %w", domain.ErrStoreUnavailable)
	}
	s := NewScheduler(reg, snaps, nil, Config{}, nil)

	require.NoError(t, s.Tick(context.Background()))
	assert.Contains(t, g.Events(), domain.EventTrafficUpdate)
	assert.Empty(t, a.Events())
}

func TestScheduler_TickSkippedOnStoreFailure(t *testing.T) {
	reg := registry.NewConnectionRegistry()
	c1 := servicetest.NewFakeClient("c1")
	c2 := servicetest.NewFakeClient("c2")
	register(t, reg, c1, domain.GlobalSubscription())
	register(t, reg, c2, domain.AreaSubscription(boundsX))

	snaps := okSnapshots()
	snaps.global = func() (domain.Snapshot, error) {
		return domain.Snapshot{}, fmt.Errorf("recent points: %w", domain.ErrStoreUnavailable)
	}
	health := &fakeHealth{}
	s := NewScheduler(reg, snaps, health, Config{}, nil)

	err := s.Tick(context.Background())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Empty(t, c1.Events())
	assert.Empty(t, c2.Events(), "no partial broadcast when the tick is skipped")

	serving, ok := health.last()
	require.True(t, ok)
	assert.False(t, serving)
}

func TestScheduler_KeepsTickingAfterStoreFailure(t *testing.T) {
	reg := registry.NewConnectionRegistry()
	c1 := servicetest.NewFakeClient("c1")
	register(t, reg, c1, domain.GlobalSubscription())

	var calls atomic.Int32
	snaps := okSnapshots()
	snaps.global = func() (domain.Snapshot, error) {
		if calls.Add(1) == 1 {
			return domain.Snapshot{}, errors.New("store down")
		}
		return domain.Snapshot{Points: globalPts, Metrics: globalMetrs}, nil
	}
	health := &fakeHealth{}
	s := NewScheduler(reg, snaps, health, Config{Interval: 10 * time.Millisecond}, nil)

	s.Start(context.Background())
	defer s.Stop()

	select {
	case msg := <-c1.Sent():
		assert.Contains(t, []string{domain.EventTrafficUpdate, domain.EventMetricsUpdate}, msg.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not recover after a failed tick")
	}
	assert.Equal(t, Running, s.State())
	assert.GreaterOrEqual(t, calls.Load(), int32(2))

	assert.Eventually(t, func() bool {
		serving, ok := health.last()
		return ok && serving
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_DepartedConnectionNotPushed(t *testing.T) {
	reg := registry.NewConnectionRegistry()
	c2 := servicetest.NewFakeClient("c2")
	register(t, reg, c2, domain.AreaSubscription(boundsX))

	started := make(chan struct{})
	release := make(chan struct{})
	snaps := okSnapshots()
	snaps.area = func(context.Context, domain.Bounds) ([]domain.TrafficPoint, error) {
		close(started)
		<-release
		return areaPts, nil
	}
	s := NewScheduler(reg, snaps, nil, Config{}, nil)

	done := make(chan error, 1)
	go func() { done <- s.Tick(context.Background()) }()

	<-started
	reg.Unregister("c2")
	close(release)

	require.NoError(t, <-done)
	assert.Empty(t, c2.Events())
}

// blockingArea returns snapshots whose area query waits for release.
func blockingArea() (*fakeSnapshots, chan struct{}, chan struct{}) {
	started := make(chan struct{})
	release := make(chan struct{})
	snaps := okSnapshots()
	snaps.area = func(context.Context, domain.Bounds) ([]domain.TrafficPoint, error) {
		close(started)
		<-release
		return areaPts, nil
	}
	return snaps, started, release
}

func TestScheduler_UnsubscribeDuringAreaQueryDropsPush(t *testing.T) {
	reg := registry.NewConnectionRegistry()
	c1 := servicetest.NewFakeClient("c1")
	register(t, reg, c1, domain.AreaSubscription(boundsX))

	snaps, started, release := blockingArea()
	s := NewScheduler(reg, snaps, nil, Config{}, nil)

	done := make(chan error, 1)
	go func() { done <- s.Tick(context.Background()) }()

	<-started
	require.NoError(t, reg.SetSubscription("c1", domain.NoSubscription()))
	close(release)

	require.NoError(t, <-done)
	assert.NotContains(t, c1.Events(), domain.EventAreaTrafficData)
}

func TestScheduler_ResubscribeDuringAreaQueryDropsStalePush(t *testing.T) {
	reg := registry.NewConnectionRegistry()
	c1 := servicetest.NewFakeClient("c1")
	register(t, reg, c1, domain.AreaSubscription(boundsX))

	snaps, started, release := blockingArea()
	s := NewScheduler(reg, snaps, nil, Config{}, nil)

	done := make(chan error, 1)
	go func() { done <- s.Tick(context.Background()) }()

	<-started
	boundsY := domain.Bounds{North: 12.9, South: 12.8, East: 77.6, West: 77.4}
	require.NoError(t, reg.SetSubscription("c1", domain.AreaSubscription(boundsY)))
	close(release)

	require.NoError(t, <-done)
	assert.Empty(t, c1.Events())

	// The next tick queries the new area.
	fresh := okSnapshots()
	require.NoError(t, NewScheduler(reg, fresh, nil, Config{}, nil).Tick(context.Background()))
	assert.Equal(t, []string{domain.EventAreaTrafficData}, c1.Events())
	assert.Equal(t, []domain.Bounds{boundsY}, fresh.areaArgs)
}

func TestScheduler_UnsubscribeFallsBackToGlobalPayload(t *testing.T) {
	reg := registry.NewConnectionRegistry()
	c1 := servicetest.NewFakeClient("c1")
	register(t, reg, c1, domain.AreaSubscription(boundsX))
	require.NoError(t, reg.SetSubscription("c1", domain.NoSubscription()))

	s := NewScheduler(reg, okSnapshots(), nil, Config{}, nil)
	require.NoError(t, s.Tick(context.Background()))

	assert.Contains(t, c1.Events(), domain.EventTrafficUpdate)
	assert.NotContains(t, c1.Events(), domain.EventAreaTrafficData)
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	reg := registry.NewConnectionRegistry()
	snaps := okSnapshots()
	s := NewScheduler(reg, snaps, nil, Config{Interval: time.Hour}, nil)

	assert.Equal(t, Stopped, s.State())
	s.Stop()
	assert.Equal(t, Stopped, s.State())

	s.Start(context.Background())
	s.Start(context.Background())
	assert.Equal(t, Running, s.State())
	assert.Equal(t, 1, s.run, "second Start does not spawn another timer")

	s.Stop()
	s.Stop()
	assert.Equal(t, Stopped, s.State())

	s.Start(context.Background())
	assert.Equal(t, Running, s.State())
	s.Stop()
}

func TestScheduler_NoTicksAfterStop(t *testing.T) {
	reg := registry.NewConnectionRegistry()
	snaps := okSnapshots()
	s := NewScheduler(reg, snaps, nil, Config{Interval: 5 * time.Millisecond}, nil)

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return snaps.globalN.Load() > 0 }, time.Second, time.Millisecond)
	s.Stop()

	// Allow one tick that was already mid-flight to finish.
	time.Sleep(20 * time.Millisecond)
	after := snaps.globalN.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, snaps.globalN.Load())
}

func TestScheduler_ParentContextCancelStops(t *testing.T) {
	reg := registry.NewConnectionRegistry()
	s := NewScheduler(reg, okSnapshots(), nil, Config{Interval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	assert.Eventually(t, func() bool { return s.State() == Stopped }, time.Second, time.Millisecond)
}
