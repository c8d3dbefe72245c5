// Package objectstore reads and writes evidence blobs by storage key.
package objectstore

import (
	"context"
	"fmt"
	"sync"

	"kycgate/pkg/platform/sentinel"
)

// ErrObjectNotFound is returned when no object exists at a key.
var ErrObjectNotFound = fmt.Errorf("object not found: %w", sentinel.ErrNotFound)

// Store is the evidence blob store.
type Store interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key, contentType string, data []byte) error
	Exists(ctx context.Context, key string) (bool, error)
}

// InMemory keeps objects in a map. Used by tests and local runs without S3.
type InMemory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewInMemory() *InMemory {
	return &InMemory{objects: make(map[string][]byte)}
}

func (s *InMemory) Download(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, ErrObjectNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *InMemory) Upload(_ context.Context, key, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *InMemory) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}
