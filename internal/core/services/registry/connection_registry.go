package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/lcalzada-xor/tmap/internal/core/ports"
)

// Entry is a point-in-time copy of one registered connection.
type Entry struct {
	ID           string
	Client       ports.Client
	Subscription domain.Subscription
	CreatedAt    time.Time
}

type connection struct {
	client       ports.Client
	subscription domain.Subscription
	createdAt    time.Time
}

// ConnectionRegistry owns every live connection and its current subscription.
// It is the only mutable state shared between the transport and the scheduler.
type ConnectionRegistry struct {
	mu          sync.RWMutex
	connections map[string]*connection
	subject     *RegistrySubject
	now         func() time.Time
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		connections: make(map[string]*connection),
		subject:     NewRegistrySubject(),
		now:         time.Now,
	}
}

// AddObserver subscribes an observer to register/unregister events.
func (r *ConnectionRegistry) AddObserver(obs ConnectionObserver) {
	r.subject.AddObserver(obs)
}

// Register creates an entry with no subscription.
func (r *ConnectionRegistry) Register(id string, client ports.Client) error {
	r.mu.Lock()
	if _, exists := r.connections[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("register %s: %w", id, domain.ErrDuplicateConnection)
	}
	r.connections[id] = &connection{
		client:       client,
		subscription: domain.NoSubscription(),
		createdAt:    r.now(),
	}
	count := len(r.connections)
	r.mu.Unlock()

	r.subject.NotifyRegistered(id, count)
	return nil
}

// Unregister removes the entry. Removing an unknown id is a no-op.
func (r *ConnectionRegistry) Unregister(id string) bool {
	r.mu.Lock()
	if _, exists := r.connections[id]; !exists {
		r.mu.Unlock()
		return false
	}
	delete(r.connections, id)
	count := len(r.connections)
	r.mu.Unlock()

	r.subject.NotifyUnregistered(id, count)
	return true
}

// SetSubscription replaces the subscription of a registered connection.
func (r *ConnectionRegistry) SetSubscription(id string, sub domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[id]
	if !exists {
		return fmt.Errorf("set subscription %s: %w", id, domain.ErrUnknownConnection)
	}
	conn.subscription = sub
	return nil
}

// Subscription returns the current subscription of a connection.
func (r *ConnectionRegistry) Subscription(id string) (domain.Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[id]
	if !exists {
		return domain.Subscription{}, false
	}
	return conn.subscription, true
}

// Get returns a copy of one entry.
func (r *ConnectionRegistry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[id]
	if !exists {
		return Entry{}, false
	}
	return Entry{ID: id, Client: conn.client, Subscription: conn.subscription, CreatedAt: conn.createdAt}, true
}

// Has reports whether the connection is still registered.
func (r *ConnectionRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.connections[id]
	return exists
}

// List returns a defensive copy of all entries in no particular order.
func (r *ConnectionRegistry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.connections))
	for id, conn := range r.connections {
		entries = append(entries, Entry{
			ID:           id,
			Client:       conn.client,
			Subscription: conn.subscription,
			CreatedAt:    conn.createdAt,
		})
	}
	return entries
}

// Count returns the number of registered connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Clear removes every entry and returns what was removed.
func (r *ConnectionRegistry) Clear() []Entry {
	r.mu.Lock()
	removed := make([]Entry, 0, len(r.connections))
	for id, conn := range r.connections {
		removed = append(removed, Entry{ID: id, Client: conn.client, Subscription: conn.subscription, CreatedAt: conn.createdAt})
	}
	r.connections = make(map[string]*connection)
	r.mu.Unlock()

	for _, e := range removed {
		r.subject.NotifyUnregistered(e.ID, 0)
	}
	return removed
}
