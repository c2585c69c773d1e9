//go:build integration

package store_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"doria/internal/doi/models"
	"doria/internal/doi/store"
	"doria/pkg/platform/sentinel"
)

const doisSchema = `
CREATE TABLE IF NOT EXISTS dois (
	doi              TEXT PRIMARY KEY,
	client_id        TEXT NOT NULL,
	provider_id      TEXT NOT NULL,
	url              TEXT NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	publisher        TEXT NOT NULL DEFAULT '',
	publication_year INT NOT NULL DEFAULT 0,
	resource_type    TEXT NOT NULL DEFAULT '',
	state            TEXT NOT NULL,
	is_valid         BOOLEAN NOT NULL DEFAULT TRUE,
	version          BIGINT NOT NULL,
	minted_at        TIMESTAMPTZ,
	registered_at    TIMESTAMPTZ,
	resolved_at      TIMESTAMPTZ,
	indexed_at       TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
)`

type PostgresStoreSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	db        *sql.DB
	store     *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("doria_test"),
		tcpostgres.WithUsername("doria"),
		tcpostgres.WithPassword("doria"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sql.Open("postgres", dsn)
	s.Require().NoError(err)
	s.db = db

	_, err = db.ExecContext(ctx, doisSchema)
	s.Require().NoError(err)

	s.store = store.NewPostgres(db)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		testcontainers.TerminateContainer(s.container)
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.db.Exec(`TRUNCATE TABLE dois`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newDOI(doi string) *models.DOI {
	d, err := models.New(doi, "sample.repo", "sample", "https://example.org/x", time.Now().UTC())
	s.Require().NoError(err)
	return d
}

func (s *PostgresStoreSuite) TestCreateGetRoundTrip() {
	ctx := context.Background()
	d := s.newDOI("10.5072/0003-rj0r")
	d.Title = "Round trip"
	s.Require().NoError(s.store.Create(ctx, d))

	found, err := s.store.Get(ctx, d.DOI)
	s.Require().NoError(err)
	s.Equal("Round trip", found.Title)
	s.Equal(models.StateDraft, found.State)
	s.Equal(int64(1), found.Version)

	s.ErrorIs(s.store.Create(ctx, d), sentinel.ErrConflict)
}

// TestConcurrentVersionRace verifies that of N concurrent writers reading the
// same version, exactly one wins and the rest see a version mismatch.
func (s *PostgresStoreSuite) TestConcurrentVersionRace() {
	ctx := context.Background()
	d := s.newDOI("10.5072/race-0000")
	s.Require().NoError(s.store.Create(ctx, d))

	const writers = 20
	var wg sync.WaitGroup
	var wins, losses atomic.Int32

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := s.store.Get(ctx, d.DOI)
			if err != nil {
				return
			}
			rec.Version = 1 // all writers race on the initial version
			rec.Title = "contender"
			switch err := s.store.Update(ctx, rec); {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrVersionMismatch):
				losses.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load(), "exactly one writer should win")
	s.Equal(int32(writers-1), losses.Load())
}
