package store

import (
	"context"
	"sort"
	"sync"

	"doria/internal/registry/models"
	"doria/pkg/platform/sentinel"
)

// MemoryProviders is a mutex-guarded map store for providers.
type MemoryProviders struct {
	mu        sync.RWMutex
	providers map[string]models.Provider
}

func NewMemoryProviders() *MemoryProviders {
	return &MemoryProviders{providers: make(map[string]models.Provider)}
}

func (s *MemoryProviders) Create(_ context.Context, p *models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[p.Symbol]; ok {
		return sentinel.ErrConflict
	}
	s.providers[p.Symbol] = *p
	return nil
}

func (s *MemoryProviders) Get(_ context.Context, symbol string) (*models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[symbol]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (s *MemoryProviders) Update(_ context.Context, p *models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.providers[p.Symbol]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != p.Version {
		return sentinel.ErrVersionMismatch
	}
	p.Version++
	s.providers[p.Symbol] = *p
	return nil
}

func (s *MemoryProviders) List(_ context.Context) ([]*models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Provider
	for _, p := range s.providers {
		rec := p
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// MemoryClients is a mutex-guarded map store for clients.
type MemoryClients struct {
	mu      sync.RWMutex
	clients map[string]models.Client
}

func NewMemoryClients() *MemoryClients {
	return &MemoryClients{clients: make(map[string]models.Client)}
}

func (s *MemoryClients) Create(_ context.Context, c *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.Symbol]; ok {
		return sentinel.ErrConflict
	}
	s.clients[c.Symbol] = *c
	return nil
}

func (s *MemoryClients) Get(_ context.Context, symbol string) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[symbol]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *MemoryClients) Update(_ context.Context, c *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.clients[c.Symbol]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != c.Version {
		return sentinel.ErrVersionMismatch
	}
	c.Version++
	s.clients[c.Symbol] = *c
	return nil
}

func (s *MemoryClients) CountActiveByProvider(_ context.Context, providerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.clients {
		if c.ProviderID == providerID && !c.IsDeleted() {
			n++
		}
	}
	return n, nil
}

func (s *MemoryClients) ListByProvider(_ context.Context, providerID string) ([]*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Client
	for _, c := range s.clients {
		if c.ProviderID == providerID {
			rec := c
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// MemoryPrefixes is a mutex-guarded map store for prefixes.
type MemoryPrefixes struct {
	mu       sync.RWMutex
	prefixes map[string]models.Prefix
}

func NewMemoryPrefixes() *MemoryPrefixes {
	return &MemoryPrefixes{prefixes: make(map[string]models.Prefix)}
}

func (s *MemoryPrefixes) Create(_ context.Context, p *models.Prefix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prefixes[p.UID]; ok {
		return sentinel.ErrConflict
	}
	s.prefixes[p.UID] = *p
	return nil
}

func (s *MemoryPrefixes) Get(_ context.Context, uid string) (*models.Prefix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefixes[uid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (s *MemoryPrefixes) Update(_ context.Context, p *models.Prefix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prefixes[p.UID]; !ok {
		return sentinel.ErrNotFound
	}
	s.prefixes[p.UID] = *p
	return nil
}

func (s *MemoryPrefixes) ListByClient(_ context.Context, clientID string) ([]*models.Prefix, error) {
	return s.list(func(p models.Prefix) bool { return p.ClientID == clientID })
}

func (s *MemoryPrefixes) ListByProvider(_ context.Context, providerID string) ([]*models.Prefix, error) {
	return s.list(func(p models.Prefix) bool { return p.ProviderID == providerID })
}

func (s *MemoryPrefixes) list(keep func(models.Prefix) bool) ([]*models.Prefix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Prefix
	for _, p := range s.prefixes {
		if keep(p) {
			rec := p
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}
