package subscription

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
)

// Store is the part of the connection registry the manager mutates.
type Store interface {
	SetSubscription(id string, sub domain.Subscription) error
}

// Manager validates subscribe/unsubscribe requests and applies them to the registry.
type Manager struct {
	store  Store
	logger *slog.Logger
}

// NewManager creates a manager bound to the registry.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger}
}

// OnSubscribeArea validates req and replaces the connection's subscription with it.
// Invalid bounds return an error wrapping domain.ErrInvalidArea and leave the
// registry untouched. A connection that is gone returns domain.ErrUnknownConnection.
func (m *Manager) OnSubscribeArea(connID string, req domain.AreaRequest) (domain.Subscription, error) {
	bounds, err := req.Bounds()
	if err != nil {
		return domain.Subscription{}, err
	}

	sub := domain.AreaSubscription(bounds)
	if err := m.store.SetSubscription(connID, sub); err != nil {
		return domain.Subscription{}, err
	}
	m.logger.Info("Area subscription set", "conn", connID, "subscription", sub.String())
	return sub, nil
}

// OnSubscribeGlobal switches the connection to the global scope.
func (m *Manager) OnSubscribeGlobal(connID string) (domain.Subscription, error) {
	sub := domain.GlobalSubscription()
	if err := m.store.SetSubscription(connID, sub); err != nil {
		return domain.Subscription{}, err
	}
	m.logger.Info("Global subscription set", "conn", connID)
	return sub, nil
}

// OnUnsubscribeArea clears the subscription. It never fails: a missing
// connection is logged at debug level and ignored.
func (m *Manager) OnUnsubscribeArea(connID string) {
	err := m.store.SetSubscription(connID, domain.NoSubscription())
	switch {
	case err == nil:
		m.logger.Info("Subscription cleared", "conn", connID)
	case errors.Is(err, domain.ErrUnknownConnection):
		m.logger.Debug("Unsubscribe for unknown connection", "conn", connID)
	default:
		m.logger.Warn("Unsubscribe failed", "conn", connID, "error", fmt.Sprint(err))
	}
}
