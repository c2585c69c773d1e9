package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"doria/internal/event/models"
	"doria/internal/event/store"
	"doria/internal/jobs"
	"doria/pkg/domainerrors"
	"doria/pkg/testutil"
)

func newService(t *testing.T) (*Service, *store.InMemory, *jobs.Memory) {
	t.Helper()
	events := store.NewInMemory()
	queue := jobs.NewMemory(16, zap.NewNop())
	return New(events, queue, zap.NewNop()), events, queue
}

func sampleInput() Input {
	return Input{
		SubjID:         "https://doi.org/10.5072/0003-rj0r",
		ObjID:          "https://example.org/citing-paper",
		SourceID:       "crossref",
		RelationTypeID: "is-referenced-by",
	}
}

func TestCreateStoresWaitingEvent(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := testutil.Context()

	e, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)
	assert.NotEmpty(t, e.UUID)
	assert.Equal(t, models.StateWaiting, e.State)
	assert.Equal(t, 1, e.Total)
	assert.Equal(t, testutil.FixedTime, e.OccurredAt)

	got, err := svc.Get(ctx, e.UUID)
	require.NoError(t, err)
	assert.Equal(t, e.UUID, got.UUID)
}

func TestCreateRejectsBadOccurredAt(t *testing.T) {
	svc, _, _ := newService(t)
	in := sampleInput()
	in.OccurredAt = "yesterday"

	_, err := svc.Create(testutil.Context(), in)
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeValidation))
}

func TestProcessBatchMarksDoneAndSchedulesSync(t *testing.T) {
	svc, events, queue := newService(t)
	ctx := testutil.Context()

	synced := make(chan string, 1)
	queue.Handle(jobs.KindEventSyncIndex, func(_ context.Context, j jobs.Job) error {
		synced <- j.Subject
		return nil
	})
	go func() { _ = queue.Run(ctx) }()
	defer queue.Close()

	e, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	n, err := svc.ProcessBatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := events.Get(ctx, e.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDone, got.State)

	select {
	case subject := <-synced:
		assert.Equal(t, e.UUID, subject)
	case <-time.After(time.Second):
		t.Fatal("sync job was not dispatched")
	}
}

func TestRetryRequeuesFailedEvents(t *testing.T) {
	svc, events, _ := newService(t)
	ctx := testutil.Context()

	e, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)
	stored, err := events.Get(ctx, e.UUID)
	require.NoError(t, err)
	stored.ApplyStart(testutil.FixedTime)
	stored.ApplyFail("index unavailable", testutil.FixedTime)
	require.NoError(t, events.Update(ctx, stored))

	n, err := svc.Retry(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := events.Get(ctx, e.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.StateWaiting, got.State)
	assert.Empty(t, got.Error)
}

func TestGetUnknownEventIsNotFound(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Get(testutil.Context(), "no-such-uuid")
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeNotFound))
}
