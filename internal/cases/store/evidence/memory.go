package evidence

import (
	"context"
	"fmt"
	"sync"

	"kycgate/internal/cases/models"
	"kycgate/pkg/platform/sentinel"
)

type InMemory struct {
	mu    sync.RWMutex
	items map[string]models.Evidence
}

func NewInMemory() *InMemory {
	return &InMemory{items: make(map[string]models.Evidence)}
}

func (s *InMemory) Create(_ context.Context, ev *models.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[ev.ID]; exists {
		return fmt.Errorf("create evidence %s: %w", ev.ID, sentinel.ErrConflict)
	}
	s.items[ev.ID] = *ev
	return nil
}

func (s *InMemory) FindByID(_ context.Context, evidenceID string) (*models.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.items[evidenceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &ev, nil
}

// FindByIDs returns the evidence rows that exist, in the order requested.
func (s *InMemory) FindByIDs(_ context.Context, evidenceIDs []string) ([]*models.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Evidence, 0, len(evidenceIDs))
	for _, id := range evidenceIDs {
		if ev, ok := s.items[id]; ok {
			out = append(out, &ev)
		}
	}
	return out, nil
}

func (s *InMemory) Update(_ context.Context, ev *models.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[ev.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.items[ev.ID] = *ev
	return nil
}
