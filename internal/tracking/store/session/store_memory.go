package session

import (
	"context"
	"sync"

	"adpulse/internal/tracking/models"
)

// InMemoryStore keeps sessions in a map for single-node and test use.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]models.Session)}
}

func (s *InMemoryStore) CreateIfAbsent(_ context.Context, sess *models.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return false, nil
	}
	s.sessions[sess.ID] = *sess
	return true, nil
}

func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
