// Package store persists harvested events.
package store

import (
	"context"
	"sort"
	"sync"

	"doria/internal/event/models"
	"doria/pkg/platform/sentinel"
)

// Store is the persistence surface for events.
type Store interface {
	Create(ctx context.Context, e *models.Event) error
	Get(ctx context.Context, uuid string) (*models.Event, error)
	Update(ctx context.Context, e *models.Event) error
	// ListByState returns up to limit events in the given state, oldest first.
	ListByState(ctx context.Context, state models.State, limit int) ([]*models.Event, error)
	// ListByDOI returns all events whose subject or object references the
	// identifier.
	ListByDOI(ctx context.Context, doi string) ([]*models.Event, error)
}

// InMemory is a mutex-guarded map store for events.
type InMemory struct {
	mu     sync.RWMutex
	events map[string]models.Event
}

func NewInMemory() *InMemory {
	return &InMemory{events: make(map[string]models.Event)}
}

func (s *InMemory) Create(_ context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.UUID]; ok {
		return sentinel.ErrConflict
	}
	s.events[e.UUID] = *e
	return nil
}

func (s *InMemory) Get(_ context.Context, uuid string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[uuid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &e, nil
}

func (s *InMemory) Update(_ context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.UUID]; !ok {
		return sentinel.ErrNotFound
	}
	s.events[e.UUID] = *e
	return nil
}

func (s *InMemory) ListByDOI(_ context.Context, doi string) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Event
	for _, e := range s.events {
		if e.DOI() == doi {
			rec := e
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) ListByState(_ context.Context, state models.State, limit int) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Event
	for _, e := range s.events {
		if e.State == state {
			rec := e
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
