// Package servicetest holds test doubles shared by the service packages.
package servicetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/lcalzada-xor/tmap/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockTrafficStore is a mock of ports.TrafficStore
type MockTrafficStore struct {
	mock.Mock
}

func (m *MockTrafficStore) RecentPoints(ctx context.Context, limit int) ([]domain.TrafficPoint, error) {
	args := m.Called(ctx, limit)
	return points(args.Get(0)), args.Error(1)
}

// PointsInBounds accepts either a slice or a func(ctx, bounds, limit) as the first return value.
func (m *MockTrafficStore) PointsInBounds(ctx context.Context, b domain.Bounds, limit int) ([]domain.TrafficPoint, error) {
	args := m.Called(ctx, b, limit)
	if fn, ok := args.Get(0).(func(context.Context, domain.Bounds, int) []domain.TrafficPoint); ok {
		return fn(ctx, b, limit), args.Error(1)
	}
	return points(args.Get(0)), args.Error(1)
}

func (m *MockTrafficStore) PointsSince(ctx context.Context, since time.Time) ([]domain.TrafficPoint, error) {
	args := m.Called(ctx, since)
	return points(args.Get(0)), args.Error(1)
}

func (m *MockTrafficStore) CountPointsSince(ctx context.Context, since time.Time) (int, error) {
	args := m.Called(ctx, since)
	return args.Int(0), args.Error(1)
}

func (m *MockTrafficStore) SavePoint(ctx context.Context, p domain.TrafficPoint) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockTrafficStore) SavePointsBatch(ctx context.Context, pts []domain.TrafficPoint) error {
	args := m.Called(ctx, pts)
	return args.Error(0)
}

func (m *MockTrafficStore) SaveMetrics(ctx context.Context, r domain.MetricsRecord) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockTrafficStore) LatestMetrics(ctx context.Context) (*domain.MetricsRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MetricsRecord), args.Error(1)
}

func (m *MockTrafficStore) AggregateMetrics(ctx context.Context, since time.Time) (domain.MetricsSnapshot, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(domain.MetricsSnapshot), args.Error(1)
}

func (m *MockTrafficStore) MetricsSince(ctx context.Context, since time.Time) ([]domain.MetricsRecord, error) {
	args := m.Called(ctx, since)
	return records(args.Get(0)), args.Error(1)
}

func (m *MockTrafficStore) MetricsInBounds(ctx context.Context, b domain.Bounds, since time.Time) ([]domain.MetricsRecord, error) {
	args := m.Called(ctx, b, since)
	return records(args.Get(0)), args.Error(1)
}

func (m *MockTrafficStore) MetricsForSegment(ctx context.Context, segmentID string, since time.Time) ([]domain.MetricsRecord, error) {
	args := m.Called(ctx, segmentID, since)
	return records(args.Get(0)), args.Error(1)
}

func (m *MockTrafficStore) LatestMetricsForSegment(ctx context.Context, segmentID string) (*domain.MetricsRecord, error) {
	args := m.Called(ctx, segmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MetricsRecord), args.Error(1)
}

func (m *MockTrafficStore) SaveAlert(ctx context.Context, a domain.Alert) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockTrafficStore) GetAlert(ctx context.Context, id string) (*domain.Alert, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Alert), args.Error(1)
}

func (m *MockTrafficStore) UpdateAlert(ctx context.Context, a domain.Alert) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockTrafficStore) ActiveAlerts(ctx context.Context, now time.Time) ([]domain.Alert, error) {
	args := m.Called(ctx, now)
	return alerts(args.Get(0)), args.Error(1)
}

func (m *MockTrafficStore) ActiveAlertsInBounds(ctx context.Context, b domain.Bounds, now time.Time) ([]domain.Alert, error) {
	args := m.Called(ctx, b, now)
	return alerts(args.Get(0)), args.Error(1)
}

func (m *MockTrafficStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTrafficStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

func points(v any) []domain.TrafficPoint {
	if v == nil {
		return nil
	}
	return v.([]domain.TrafficPoint)
}

func records(v any) []domain.MetricsRecord {
	if v == nil {
		return nil
	}
	return v.([]domain.MetricsRecord)
}

func alerts(v any) []domain.Alert {
	if v == nil {
		return nil
	}
	return v.([]domain.Alert)
}

var _ ports.TrafficStore = (*MockTrafficStore)(nil)

// ErrClosed is returned by a FakeClient after Close or when configured to fail.
var ErrClosed = errors.New("fake client closed")

// Message is one event recorded by FakeClient.
type Message struct {
	Event   string
	Payload any
}

// FakeClient records every event sent to it.
type FakeClient struct {
	id       string
	mu       sync.Mutex
	messages []Message
	failSend bool
	closed   bool
	sent     chan Message
}

// NewFakeClient creates a client with the given id.
func NewFakeClient(id string) *FakeClient {
	return &FakeClient{id: id, sent: make(chan Message, 64)}
}

// NewFailingClient creates a client whose every Send fails.
func NewFailingClient(id string) *FakeClient {
	c := NewFakeClient(id)
	c.failSend = true
	return c
}

func (c *FakeClient) ID() string { return c.id }

func (c *FakeClient) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend || c.closed {
		return ErrClosed
	}
	msg := Message{Event: event, Payload: payload}
	c.messages = append(c.messages, msg)
	select {
	case c.sent <- msg:
	default:
	}
	return nil
}

func (c *FakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Messages returns a copy of everything sent so far.
func (c *FakeClient) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Events returns the event names sent so far, in order.
func (c *FakeClient) Events() []string {
	var names []string
	for _, m := range c.Messages() {
		names = append(names, m.Event)
	}
	return names
}

// Last returns the most recent message with the given event name.
func (c *FakeClient) Last(event string) (Message, bool) {
	msgs := c.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Event == event {
			return msgs[i], true
		}
	}
	return Message{}, false
}

// Sent exposes a channel fed with each successful Send, for waiting in tests.
func (c *FakeClient) Sent() <-chan Message { return c.sent }

// IsClosed reports whether Close was called.
func (c *FakeClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

var _ ports.Client = (*FakeClient)(nil)
