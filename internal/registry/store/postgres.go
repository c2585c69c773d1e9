package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"doria/internal/registry/models"
	"doria/pkg/platform/sentinel"
)

// PostgresProviders persists provider records in PostgreSQL.
type PostgresProviders struct {
	db *sql.DB
}

func NewPostgresProviders(db *sql.DB) *PostgresProviders {
	return &PostgresProviders{db: db}
}

const providerColumns = `symbol, name, contact_email, website, country_code,
	member_type, organization_type, focus_area, version, deleted_at,
	created_at, updated_at`

func (s *PostgresProviders) Create(ctx context.Context, p *models.Provider) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO providers (`+providerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.Symbol, p.Name, p.ContactEmail, p.Website, p.CountryCode,
		p.MemberType, p.OrganizationType, p.FocusArea, p.Version, p.DeletedAt,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert provider: %w", err)
	}
	return nil
}

func (s *PostgresProviders) Get(ctx context.Context, symbol string) (*models.Provider, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE symbol = $1`, symbol)
	return scanProvider(row)
}

func (s *PostgresProviders) Update(ctx context.Context, p *models.Provider) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE providers SET
			name = $2, contact_email = $3, website = $4, country_code = $5,
			member_type = $6, organization_type = $7, focus_area = $8,
			version = version + 1, deleted_at = $9, updated_at = $10
		WHERE symbol = $1 AND version = $11`,
		p.Symbol, p.Name, p.ContactEmail, p.Website, p.CountryCode,
		p.MemberType, p.OrganizationType, p.FocusArea,
		p.DeletedAt, p.UpdatedAt, p.Version,
	)
	if err != nil {
		return fmt.Errorf("update provider: %w", err)
	}
	return checkOptimisticWrite(ctx, s.db, res,
		`SELECT EXISTS (SELECT 1 FROM providers WHERE symbol = $1)`, p.Symbol, &p.Version)
}

func (s *PostgresProviders) List(ctx context.Context) ([]*models.Provider, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+providerColumns+` FROM providers ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var out []*models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProvider(row scanner) (*models.Provider, error) {
	var p models.Provider
	err := row.Scan(
		&p.Symbol, &p.Name, &p.ContactEmail, &p.Website, &p.CountryCode,
		&p.MemberType, &p.OrganizationType, &p.FocusArea, &p.Version, &p.DeletedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan provider: %w", err)
	}
	return &p, nil
}

// PostgresClients persists client records in PostgreSQL.
type PostgresClients struct {
	db *sql.DB
}

func NewPostgresClients(db *sql.DB) *PostgresClients {
	return &PostgresClients{db: db}
}

const clientColumns = `symbol, provider_id, name, contact_email, url, software,
	re3data_id, client_type, is_active, version, deleted_at, created_at, updated_at`

func (s *PostgresClients) Create(ctx context.Context, c *models.Client) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.Symbol, c.ProviderID, c.Name, c.ContactEmail, c.URL, c.Software,
		c.Re3dataID, c.ClientType, c.IsActive, c.Version, c.DeletedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (s *PostgresClients) Get(ctx context.Context, symbol string) (*models.Client, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE symbol = $1`, symbol)
	return scanClient(row)
}

func (s *PostgresClients) Update(ctx context.Context, c *models.Client) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE clients SET
			provider_id = $2, name = $3, contact_email = $4, url = $5,
			software = $6, re3data_id = $7, client_type = $8, is_active = $9,
			version = version + 1, deleted_at = $10, updated_at = $11
		WHERE symbol = $1 AND version = $12`,
		c.Symbol, c.ProviderID, c.Name, c.ContactEmail, c.URL,
		c.Software, c.Re3dataID, c.ClientType, c.IsActive,
		c.DeletedAt, c.UpdatedAt, c.Version,
	)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	return checkOptimisticWrite(ctx, s.db, res,
		`SELECT EXISTS (SELECT 1 FROM clients WHERE symbol = $1)`, c.Symbol, &c.Version)
}

func (s *PostgresClients) CountActiveByProvider(ctx context.Context, providerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM clients WHERE provider_id = $1 AND deleted_at IS NULL`,
		providerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count clients by provider: %w", err)
	}
	return n, nil
}

func (s *PostgresClients) ListByProvider(ctx context.Context, providerID string) ([]*models.Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE provider_id = $1 ORDER BY symbol`, providerID)
	if err != nil {
		return nil, fmt.Errorf("list clients by provider: %w", err)
	}
	defer rows.Close()

	var out []*models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanClient(row scanner) (*models.Client, error) {
	var c models.Client
	err := row.Scan(
		&c.Symbol, &c.ProviderID, &c.Name, &c.ContactEmail, &c.URL, &c.Software,
		&c.Re3dataID, &c.ClientType, &c.IsActive, &c.Version, &c.DeletedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan client: %w", err)
	}
	return &c, nil
}

// PostgresPrefixes persists prefix records in PostgreSQL.
type PostgresPrefixes struct {
	db *sql.DB
}

func NewPostgresPrefixes(db *sql.DB) *PostgresPrefixes {
	return &PostgresPrefixes{db: db}
}

const prefixColumns = `uid, provider_id, client_id, created_at, updated_at`

func (s *PostgresPrefixes) Create(ctx context.Context, p *models.Prefix) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prefixes (`+prefixColumns+`)
		VALUES ($1, $2, $3, $4, $5)`,
		p.UID, p.ProviderID, p.ClientID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert prefix: %w", err)
	}
	return nil
}

func (s *PostgresPrefixes) Get(ctx context.Context, uid string) (*models.Prefix, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+prefixColumns+` FROM prefixes WHERE uid = $1`, uid)
	var p models.Prefix
	err := row.Scan(&p.UID, &p.ProviderID, &p.ClientID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan prefix: %w", err)
	}
	return &p, nil
}

func (s *PostgresPrefixes) Update(ctx context.Context, p *models.Prefix) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE prefixes SET provider_id = $2, client_id = $3, updated_at = $4
		WHERE uid = $1`,
		p.UID, p.ProviderID, p.ClientID, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update prefix: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update prefix rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresPrefixes) ListByClient(ctx context.Context, clientID string) ([]*models.Prefix, error) {
	return s.list(ctx, `SELECT `+prefixColumns+` FROM prefixes WHERE client_id = $1 ORDER BY uid`, clientID)
}

func (s *PostgresPrefixes) ListByProvider(ctx context.Context, providerID string) ([]*models.Prefix, error) {
	return s.list(ctx, `SELECT `+prefixColumns+` FROM prefixes WHERE provider_id = $1 ORDER BY uid`, providerID)
}

func (s *PostgresPrefixes) list(ctx context.Context, query, arg string) ([]*models.Prefix, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list prefixes: %w", err)
	}
	defer rows.Close()

	var out []*models.Prefix
	for rows.Next() {
		var p models.Prefix
		if err := rows.Scan(&p.UID, &p.ProviderID, &p.ClientID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan prefix: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// checkOptimisticWrite resolves a zero-row UPDATE into the right sentinel and
// bumps the caller's version on success.
func checkOptimisticWrite(ctx context.Context, db *sql.DB, res sql.Result, existsQuery, key string, version *int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := db.QueryRowContext(ctx, existsQuery, key).Scan(&exists); err != nil {
			return fmt.Errorf("existence check: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrVersionMismatch
	}
	*version++
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}
