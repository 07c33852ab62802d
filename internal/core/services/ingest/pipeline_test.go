package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingWriter implements ports.PointWriter for testing
type recordingWriter struct {
	mu      sync.Mutex
	batches [][]domain.TrafficPoint
	fail    error
}

func (w *recordingWriter) SavePoint(ctx context.Context, p domain.TrafficPoint) error {
	return w.SavePointsBatch(ctx, []domain.TrafficPoint{p})
}

func (w *recordingWriter) SavePointsBatch(_ context.Context, points []domain.TrafficPoint) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return w.fail
	}
	w.batches = append(w.batches, points)
	return nil
}

func (w *recordingWriter) saved() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func point(i int) domain.TrafficPoint {
	return domain.TrafficPoint{
		ID:        fmt.Sprintf("p%d", i),
		Location:  domain.Location{Lat: 12.97, Lng: 77.59},
		Status:    domain.StatusMedium,
		SpeedKmph: 30,
		RoadName:  "MG Road",
	}
}

func TestPipeline_SubmitFillsDefaults(t *testing.T) {
	p := NewPipeline(&recordingWriter{}, 10, nil)
	fixed := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	pt := point(0)
	pt.ID = ""
	got, err := p.Submit("api", pt)
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, fixed, got.Timestamp)
}

func TestPipeline_SubmitRejectsInvalid(t *testing.T) {
	p := NewPipeline(&recordingWriter{}, 10, nil)

	bad := point(0)
	bad.Status = "gridlock"
	_, err := p.Submit("api", bad)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	bad = point(1)
	bad.Location.Lat = 120
	_, err = p.Submit("api", bad)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPipeline_SubmitDropsWhenFull(t *testing.T) {
	p := NewPipeline(&recordingWriter{}, 2, nil)

	_, err := p.Submit("api", point(0))
	require.NoError(t, err)
	_, err = p.Submit("api", point(1))
	require.NoError(t, err)
	_, err = p.Submit("api", point(2))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestPipeline_Batching(t *testing.T) {
	w := &recordingWriter{}
	p := NewPipeline(w, 10, nil)
	p.batchSize = 5
	p.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	for i := 0; i < 4; i++ {
		_, err := p.Submit("api", point(i))
		require.NoError(t, err)
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, w.saved(), "below batch size nothing is flushed")

	_, err := p.Submit("api", point(4))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return w.saved() == 5 }, time.Second, 5*time.Millisecond)
}

func TestPipeline_IntervalFlushAndListener(t *testing.T) {
	w := &recordingWriter{}
	p := NewPipeline(w, 10, nil)
	p.interval = 10 * time.Millisecond

	flushed := make(chan []domain.TrafficPoint, 1)
	p.OnFlush(func(points []domain.TrafficPoint) { flushed <- points })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	_, err := p.Submit("redis", point(1))
	require.NoError(t, err)

	select {
	case got := <-flushed:
		require.Len(t, got, 1)
		assert.Equal(t, "p1", got[0].ID)
	case <-time.After(time.Second):
		t.Fatal("listener not called")
	}
}

func TestPipeline_FlushFailureSkipsListener(t *testing.T) {
	w := &recordingWriter{fail: errors.New("disk full")}
	p := NewPipeline(w, 10, nil)
	p.interval = time.Hour

	called := false
	p.OnFlush(func([]domain.TrafficPoint) { called = true })

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	_, err := p.Submit("api", point(1))
	require.NoError(t, err)
	cancel()
	<-p.Done()

	assert.False(t, called)
}

func TestPipeline_FlushOnShutdown(t *testing.T) {
	w := &recordingWriter{}
	p := NewPipeline(w, 10, nil)
	p.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	for i := 0; i < 3; i++ {
		_, err := p.Submit("mock", point(i))
		require.NoError(t, err)
	}
	cancel()

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop")
	}
	assert.Equal(t, 3, w.saved())
}
