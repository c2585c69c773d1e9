// Package store persists registry entities: providers, clients and prefixes.
package store

import (
	"context"

	"doria/internal/registry/models"
)

// Providers is the persistence surface for provider records. Soft-deleted
// records are still returned by Get and List; callers filter on DeletedAt.
//
// Sentinel errors follow the usual contract: Create returns ErrConflict on a
// duplicate symbol, Get and Update return ErrNotFound, Update returns
// ErrVersionMismatch when the record's version moved underneath the caller.
type Providers interface {
	Create(ctx context.Context, p *models.Provider) error
	Get(ctx context.Context, symbol string) (*models.Provider, error)
	Update(ctx context.Context, p *models.Provider) error
	List(ctx context.Context) ([]*models.Provider, error)
}

// Clients is the persistence surface for client records.
type Clients interface {
	Create(ctx context.Context, c *models.Client) error
	Get(ctx context.Context, symbol string) (*models.Client, error)
	Update(ctx context.Context, c *models.Client) error
	// CountActiveByProvider counts undeleted clients under a provider.
	CountActiveByProvider(ctx context.Context, providerID string) (int, error)
	ListByProvider(ctx context.Context, providerID string) ([]*models.Client, error)
}

// Prefixes is the persistence surface for prefix records.
type Prefixes interface {
	Create(ctx context.Context, p *models.Prefix) error
	Get(ctx context.Context, uid string) (*models.Prefix, error)
	Update(ctx context.Context, p *models.Prefix) error
	ListByClient(ctx context.Context, clientID string) ([]*models.Prefix, error)
	ListByProvider(ctx context.Context, providerID string) ([]*models.Prefix, error)
}
