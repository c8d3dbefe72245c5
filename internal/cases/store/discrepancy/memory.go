package discrepancy

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"kycgate/internal/cases/models"
)

type InMemory struct {
	mu    sync.RWMutex
	items map[string][]models.Discrepancy
}

func NewInMemory() *InMemory {
	return &InMemory{items: make(map[string][]models.Discrepancy)}
}

func (s *InMemory) Create(_ context.Context, d *models.Discrepancy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	cp.ResolutionRequired = maps.Clone(d.ResolutionRequired)
	s.items[d.CaseID] = append(s.items[d.CaseID], cp)
	return nil
}

// ListOpen returns OPEN discrepancies ordered by creation time.
func (s *InMemory) ListOpen(_ context.Context, caseID string) ([]*models.Discrepancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Discrepancy
	for _, d := range s.items[caseID] {
		if d.Status == models.DiscrepancyOpen {
			cp := d
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ClearOpen marks every OPEN discrepancy of the case RESOLVED.
func (s *InMemory) ClearOpen(_ context.Context, caseID string, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cleared := 0
	items := s.items[caseID]
	for i := range items {
		if items[i].Status == models.DiscrepancyOpen {
			items[i].Status = models.DiscrepancyResolved
			cleared++
		}
	}
	return cleared, nil
}

// ListAll returns every discrepancy ever recorded for the case.
func (s *InMemory) ListAll(_ context.Context, caseID string) ([]*models.Discrepancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Discrepancy, 0, len(s.items[caseID]))
	for _, d := range s.items[caseID] {
		cp := d
		out = append(out, &cp)
	}
	return out, nil
}
