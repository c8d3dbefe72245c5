package cases

import (
	"context"
	"fmt"
	"sync"

	"kycgate/internal/cases/models"
	"kycgate/pkg/platform/sentinel"
)

// InMemory stores cases in a map. Values are cloned on the way in and out so
// callers never share mutable state with the store.
type InMemory struct {
	mu    sync.RWMutex
	cases map[string]*models.Case
}

func NewInMemory() *InMemory {
	return &InMemory{cases: make(map[string]*models.Case)}
}

func (s *InMemory) Create(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cases[c.ID]; exists {
		return fmt.Errorf("create case %s: %w", c.ID, sentinel.ErrConflict)
	}
	s.cases[c.ID] = c.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, caseID string) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[caseID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *InMemory) Save(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[c.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.cases[c.ID] = c.Clone()
	return nil
}

// ListByCustomer returns every case opened for customerID.
func (s *InMemory) ListByCustomer(_ context.Context, customerID string) ([]*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Case
	for _, c := range s.cases {
		if c.CustomerID == customerID {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}
