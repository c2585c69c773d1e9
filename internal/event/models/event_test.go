package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doria/pkg/domainerrors"
)

var testNow = time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)

func newWaiting(t *testing.T) *Event {
	t.Helper()
	e, err := New("https://doi.org/10.5072/0003-rj0r", "https://example.org/article",
		"datacite-usage", "is-referenced-by", time.Time{}, testNow)
	require.NoError(t, err)
	return e
}

func TestNewDefaults(t *testing.T) {
	e := newWaiting(t)
	assert.NotEmpty(t, e.UUID)
	assert.Equal(t, StateWaiting, e.State)
	assert.Equal(t, 1, e.Total)
	assert.Equal(t, testNow, e.OccurredAt, "zero occurrence time falls back to now")
	assert.Equal(t, "2024-05", e.YearMonth())
}

func TestNewCollectsFieldErrors(t *testing.T) {
	_, err := New("", "obj", "", "", time.Time{}, testNow)
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeValidation))
	assert.Len(t, domainerrors.Details(err), 3)
}

func TestDOIExtraction(t *testing.T) {
	e := newWaiting(t)
	assert.Equal(t, "10.5072/0003-rj0r", e.DOI())

	e.SubjID = "https://example.org/article"
	e.ObjID = "http://doi.org/10.5072/0003-RJ0R"
	assert.Equal(t, "10.5072/0003-rj0r", e.DOI(), "object side and case both normalize")

	e.ObjID = "https://example.org/other"
	assert.Empty(t, e.DOI())
}

func TestProcessingStateMachine(t *testing.T) {
	e := newWaiting(t)

	require.NoError(t, e.CanStart())
	e.ApplyStart(testNow)
	assert.Equal(t, StateWorking, e.State)

	err := e.CanStart()
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeInvariantViolation))

	e.ApplyFail("resolver timeout", testNow)
	assert.Equal(t, StateFailed, e.State)
	assert.Equal(t, "resolver timeout", e.Error)

	require.NoError(t, e.CanRetry())
	e.ApplyRetry(testNow)
	assert.Equal(t, StateWaiting, e.State)
	assert.Empty(t, e.Error)

	e.ApplyStart(testNow)
	e.ApplyDone(testNow)
	assert.Equal(t, StateDone, e.State)
	require.Error(t, e.CanRetry())
}
