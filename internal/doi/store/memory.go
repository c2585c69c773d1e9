package store

import (
	"context"
	"sort"
	"sync"

	"doria/internal/doi/models"
	"doria/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded map store. It backs local development and acts
// as the test fake, matching the behavior of the Postgres store including
// version compare-and-swap.
type InMemory struct {
	mu   sync.RWMutex
	dois map[string]models.DOI
}

func NewInMemory() *InMemory {
	return &InMemory{dois: make(map[string]models.DOI)}
}

func (s *InMemory) Create(_ context.Context, d *models.DOI) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dois[d.DOI]; ok {
		return sentinel.ErrConflict
	}
	s.dois[d.DOI] = *d
	return nil
}

func (s *InMemory) Get(_ context.Context, doi string) (*models.DOI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dois[doi]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &d, nil
}

func (s *InMemory) Update(_ context.Context, d *models.DOI) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.dois[d.DOI]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != d.Version {
		return sentinel.ErrVersionMismatch
	}
	d.Version++
	s.dois[d.DOI] = *d
	return nil
}

func (s *InMemory) Delete(_ context.Context, doi string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dois[doi]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.dois, doi)
	return nil
}

func (s *InMemory) CountByClient(_ context.Context, clientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, d := range s.dois {
		if d.ClientID == clientID {
			n++
		}
	}
	return n, nil
}

func (s *InMemory) ListByClient(_ context.Context, clientID string) ([]*models.DOI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DOI
	for _, d := range s.dois {
		if d.ClientID == clientID {
			rec := d
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DOI < out[j].DOI })
	return out, nil
}
