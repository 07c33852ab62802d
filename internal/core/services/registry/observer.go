package registry

import "sync"

// ConnectionObserver is notified when connections come and go.
// Callbacks run synchronously after the registry lock is released.
type ConnectionObserver interface {
	OnRegistered(id string, total int)
	OnUnregistered(id string, total int)
}

// RegistrySubject manages observers and notifies them of events.
type RegistrySubject struct {
	observers []ConnectionObserver
	mu        sync.RWMutex
}

// NewRegistrySubject creates a new subject.
func NewRegistrySubject() *RegistrySubject {
	return &RegistrySubject{
		observers: make([]ConnectionObserver, 0),
	}
}

// AddObserver registers a new observer.
func (s *RegistrySubject) AddObserver(observer ConnectionObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

// NotifyRegistered notifies all observers of a new connection.
func (s *RegistrySubject) NotifyRegistered(id string, total int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, obs := range s.observers {
		obs.OnRegistered(id, total)
	}
}

// NotifyUnregistered notifies all observers of a removed connection.
func (s *RegistrySubject) NotifyUnregistered(id string, total int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, obs := range s.observers {
		obs.OnUnregistered(id, total)
	}
}
