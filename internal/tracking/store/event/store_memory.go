package event

import (
	"context"
	"maps"
	"sync"

	"adpulse/internal/tracking/models"
)

// InMemoryStore appends events to a slice and assigns ids from a counter.
// Used when no database is configured and in tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	events []models.TrackingEvent
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

// Append stores a copy of event and returns its id. Ids strictly increase
// in append order.
func (s *InMemoryStore) Append(_ context.Context, event *models.TrackingEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	stored := *event
	stored.ID = s.nextID
	stored.Metadata = maps.Clone(event.Metadata)
	s.events = append(s.events, stored)
	return stored.ID, nil
}

// List returns a copy of all stored events in append order.
func (s *InMemoryStore) List() []models.TrackingEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TrackingEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
