package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"doria/internal/doi/models"
	"doria/pkg/platform/sentinel"
)

// Postgres persists DOI records in PostgreSQL via database/sql.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const doiColumns = `doi, client_id, provider_id, url, title, publisher,
	publication_year, resource_type, state, is_valid, version,
	minted_at, registered_at, resolved_at, indexed_at, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, d *models.DOI) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dois (`+doiColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		d.DOI, d.ClientID, d.ProviderID, d.URL, d.Title, d.Publisher,
		d.PublicationYear, d.ResourceType, d.State, d.IsValid, d.Version,
		d.MintedAt, d.RegisteredAt, d.ResolvedAt, d.IndexedAt, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert doi: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, doi string) (*models.DOI, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+doiColumns+` FROM dois WHERE doi = $1`, doi)
	return scanDOI(row)
}

func (s *Postgres) Update(ctx context.Context, d *models.DOI) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE dois SET
			client_id = $2, provider_id = $3, url = $4, title = $5,
			publisher = $6, publication_year = $7, resource_type = $8,
			state = $9, is_valid = $10, version = version + 1,
			minted_at = $11, registered_at = $12, resolved_at = $13,
			indexed_at = $14, updated_at = $15
		WHERE doi = $1 AND version = $16`,
		d.DOI, d.ClientID, d.ProviderID, d.URL, d.Title,
		d.Publisher, d.PublicationYear, d.ResourceType,
		d.State, d.IsValid,
		d.MintedAt, d.RegisteredAt, d.ResolvedAt,
		d.IndexedAt, d.UpdatedAt, d.Version,
	)
	if err != nil {
		return fmt.Errorf("update doi: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update doi rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing record from a lost optimistic race.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM dois WHERE doi = $1)`, d.DOI).Scan(&exists); err != nil {
			return fmt.Errorf("update doi existence check: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrVersionMismatch
	}
	d.Version++
	return nil
}

func (s *Postgres) Delete(ctx context.Context, doi string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dois WHERE doi = $1`, doi)
	if err != nil {
		return fmt.Errorf("delete doi: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete doi rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) CountByClient(ctx context.Context, clientID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dois WHERE client_id = $1`, clientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count dois by client: %w", err)
	}
	return n, nil
}

func (s *Postgres) ListByClient(ctx context.Context, clientID string) ([]*models.DOI, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+doiColumns+` FROM dois WHERE client_id = $1 ORDER BY doi`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list dois by client: %w", err)
	}
	defer rows.Close()

	var out []*models.DOI
	for rows.Next() {
		d, err := scanDOI(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDOI(row scanner) (*models.DOI, error) {
	var d models.DOI
	err := row.Scan(
		&d.DOI, &d.ClientID, &d.ProviderID, &d.URL, &d.Title, &d.Publisher,
		&d.PublicationYear, &d.ResourceType, &d.State, &d.IsValid, &d.Version,
		&d.MintedAt, &d.RegisteredAt, &d.ResolvedAt, &d.IndexedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan doi: %w", err)
	}
	d.Kind = models.KindDefault
	return &d, nil
}
