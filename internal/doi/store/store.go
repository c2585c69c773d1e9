// Package store persists DOI records in the system of record.
package store

import (
	"context"

	"doria/internal/doi/models"
)

// Store is the persistence surface for DOI records. Implementations return
// sentinel errors (pkg/platform/sentinel) for infrastructure facts:
//
//   - Create: ErrConflict when the DOI string already exists
//   - Get/Delete: ErrNotFound
//   - Update: ErrVersionMismatch when the record's version moved underneath
//     the caller, ErrNotFound when the record is gone
//
// Update performs a compare-and-swap on Version: the caller passes the record
// as read (including the version it read) and on success the store bumps
// Version by one, mirroring the bump into the passed record.
type Store interface {
	Create(ctx context.Context, d *models.DOI) error
	Get(ctx context.Context, doi string) (*models.DOI, error)
	Update(ctx context.Context, d *models.DOI) error
	Delete(ctx context.Context, doi string) error
	CountByClient(ctx context.Context, clientID string) (int, error)
	ListByClient(ctx context.Context, clientID string) ([]*models.DOI, error)
}
