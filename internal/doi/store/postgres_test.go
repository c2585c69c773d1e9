package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doria/internal/doi/models"
	"doria/pkg/platform/sentinel"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

func testDOI(t *testing.T) *models.DOI {
	t.Helper()
	d, err := models.New("10.5072/0003-rj0r", "sample.repo", "sample", "https://example.org/x", time.Now().UTC())
	require.NoError(t, err)
	return d
}

func TestPostgresUpdateVersionMismatch(t *testing.T) {
	s, mock := newMockStore(t)
	d := testDOI(t)

	mock.ExpectExec(`UPDATE dois SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(d.DOI).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := s.Update(context.Background(), d)
	assert.ErrorIs(t, err, sentinel.ErrVersionMismatch)
	assert.Equal(t, int64(1), d.Version, "version must not advance on a lost race")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	d := testDOI(t)

	mock.ExpectExec(`UPDATE dois SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(d.DOI).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := s.Update(context.Background(), d)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateSuccessBumpsVersion(t *testing.T) {
	s, mock := newMockStore(t)
	d := testDOI(t)

	mock.ExpectExec(`UPDATE dois SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Update(context.Background(), d))
	assert.Equal(t, int64(2), d.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM dois`).
		WithArgs("10.5072/none").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Delete(context.Background(), "10.5072/none")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
