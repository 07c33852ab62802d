package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/lcalzada-xor/tmap/internal/core/ports"
	"github.com/lcalzada-xor/tmap/internal/telemetry"
)

// ErrQueueFull is returned by Submit when the pipeline cannot accept more points.
var ErrQueueFull = errors.New("ingest queue full")

// FlushListener is called with every batch that was stored successfully.
type FlushListener func(points []domain.TrafficPoint)

// Pipeline handles background batch writing of traffic points to storage.
type Pipeline struct {
	storage      ports.PointWriter
	queue        chan domain.TrafficPoint
	batchSize    int
	interval     time.Duration
	flushTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu        sync.RWMutex
	listeners []FlushListener
	done      chan struct{}
}

// NewPipeline creates a pipeline with a queue of bufferSize points.
func NewPipeline(storage ports.PointWriter, bufferSize int, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		storage:      storage,
		queue:        make(chan domain.TrafficPoint, bufferSize),
		batchSize:    100,
		interval:     time.Second,
		flushTimeout: 5 * time.Second,
		logger:       logger,
		now:          time.Now,
		done:         make(chan struct{}),
	}
}

// OnFlush registers a listener for stored batches.
func (p *Pipeline) OnFlush(l FlushListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Submit validates a point and queues it. A missing id or timestamp is filled in.
// source labels the point in metrics (api, redis, mock).
func (p *Pipeline) Submit(source string, pt domain.TrafficPoint) (domain.TrafficPoint, error) {
	if pt.ID == "" {
		pt.ID = uuid.NewString()
	}
	if pt.Timestamp.IsZero() {
		pt.Timestamp = p.now()
	}
	pt.Timestamp = pt.Timestamp.UTC()
	if err := pt.Validate(); err != nil {
		return pt, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	// Never block the caller; a full queue drops the point.
	select {
	case p.queue <- pt:
		telemetry.PointsIngested.WithLabelValues(source).Inc()
		return pt, nil
	default:
		telemetry.PointsDropped.Inc()
		return pt, ErrQueueFull
	}
}

// Done is closed once the pipeline has stopped and flushed its buffer.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Start begins the persistence loop. The buffer is flushed when ctx ends.
func (p *Pipeline) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	buffer := make(map[string]domain.TrafficPoint)

	go func() {
		defer close(p.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.drain(buffer)
				p.flushBuffer(buffer)
				return
			case pt := <-p.queue:
				buffer[pt.ID] = pt
				if len(buffer) >= p.batchSize {
					p.flushBuffer(buffer)
					buffer = make(map[string]domain.TrafficPoint)
				}
			case <-ticker.C:
				if len(buffer) > 0 {
					p.flushBuffer(buffer)
					buffer = make(map[string]domain.TrafficPoint)
				}
			}
		}
	}()
}

func (p *Pipeline) drain(buffer map[string]domain.TrafficPoint) {
	for {
		select {
		case pt := <-p.queue:
			buffer[pt.ID] = pt
		default:
			return
		}
	}
}

func (p *Pipeline) flushBuffer(buffer map[string]domain.TrafficPoint) {
	if len(buffer) == 0 || p.storage == nil {
		return
	}
	points := make([]domain.TrafficPoint, 0, len(buffer))
	for _, pt := range buffer {
		points = append(points, pt)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })

	ctx, cancel := context.WithTimeout(context.Background(), p.flushTimeout)
	defer cancel()
	if err := p.storage.SavePointsBatch(ctx, points); err != nil {
		telemetry.StoreErrors.WithLabelValues("save_points").Inc()
		p.logger.Warn("Failed to batch save traffic points", "count", len(points), "error", err)
		return
	}

	p.mu.RLock()
	listeners := append([]FlushListener(nil), p.listeners...)
	p.mu.RUnlock()
	for _, l := range listeners {
		l(points)
	}
}

var _ ports.PointSink = (*Pipeline)(nil)
