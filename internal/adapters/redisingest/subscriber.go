package redisingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/lcalzada-xor/tmap/internal/core/ports"
)

// Source labels points received over pub/sub.
const Source = "redis"

// Subscriber forwards traffic points published on a Redis channel to a PointSink.
// Each message carries one JSON-encoded point.
type Subscriber struct {
	rdb     *redis.Client
	channel string
	sink    ports.PointSink
	logger  *slog.Logger
}

// NewSubscriber creates a subscriber on addr. The connection is opened lazily by Run.
func NewSubscriber(addr, channel string, sink ports.PointSink, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Protocol: 2,
	})
	return &Subscriber{
		rdb:     rdb,
		channel: channel,
		sink:    sink,
		logger:  logger.With("component", "redis-ingest", "channel", channel),
	}
}

// Run subscribes and blocks until ctx is cancelled or the subscription fails.
func (s *Subscriber) Run(ctx context.Context) error {
	defer s.rdb.Close()

	pubsub := s.rdb.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.logger.Info("Subscribed to Redis channel")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handleMessage(msg.Payload)
		}
	}
}

// handleMessage decodes one payload and submits it. Bad payloads are logged and skipped.
func (s *Subscriber) handleMessage(payload string) {
	var p domain.TrafficPoint
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		s.logger.Warn("Error decoding traffic payload", "error", err)
		return
	}
	stored, err := s.sink.Submit(Source, p)
	if err != nil {
		s.logger.Warn("Rejected traffic point", "id", stored.ID, "error", err)
		return
	}
	s.logger.Debug("Queued traffic point", "id", stored.ID, "road", stored.RoadName)
}
