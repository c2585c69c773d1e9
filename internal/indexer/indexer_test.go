package indexer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	doimetrics "doria/internal/doi/metrics"
	doimodels "doria/internal/doi/models"
	doistore "doria/internal/doi/store"
	eventmodels "doria/internal/event/models"
	eventstore "doria/internal/event/store"
	"doria/internal/jobs"
	registrymodels "doria/internal/registry/models"
	registrystore "doria/internal/registry/store"
	"doria/internal/search"
	"doria/pkg/testutil"
)

// Shared so the test binary registers the prometheus collectors once.
var metricsOnce = sync.OnceValue(doimetrics.New)

type recordingFeed struct {
	mu   sync.Mutex
	docs []search.Document
}

func (f *recordingFeed) Announce(_ context.Context, doc search.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	return nil
}

type fixture struct {
	ix      *Indexer
	backend *search.InMemory
	dois    *doistore.InMemory
	clients *registrystore.MemoryClients
	events  *eventstore.InMemory
	feed    *recordingFeed
	queue   *jobs.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := search.NewInMemory()
	dois := doistore.NewInMemory()
	clients := registrystore.NewMemoryClients()
	providers := registrystore.NewMemoryProviders()
	events := eventstore.NewInMemory()
	queue := jobs.NewMemory(64, zap.NewNop())
	feed := &recordingFeed{}
	ix := New(backend, dois, clients, providers, events, queue,
		metricsOnce(), zap.NewNop(), WithFeed(feed))
	ix.RegisterHandlers(queue)
	return &fixture{ix: ix, backend: backend, dois: dois, clients: clients,
		events: events, feed: feed, queue: queue}
}

func seedDOI(t *testing.T, f *fixture, state doimodels.State) *doimodels.DOI {
	t.Helper()
	ctx := testutil.Context()
	d, err := doimodels.New("10.5072/0003-rj0r", "sample.repo", "sample",
		"https://example.org/x", testutil.FixedTime)
	require.NoError(t, err)
	d.Title = "Sample Dataset"
	d.State = state
	require.NoError(t, f.dois.Create(ctx, d))
	return d
}

func TestSyncDOIRecomputesFullProjection(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Context()
	d := seedDOI(t, f, doimodels.StateRegistered)

	err := f.ix.syncDOI(ctx, jobs.NewJob(jobs.KindDOISyncIndex, d.DOI, testutil.FixedTime))
	require.NoError(t, err)

	result, err := f.backend.Search(ctx, IndexDOIs, search.Query{Size: 10})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	doc := result.Documents[0]
	assert.Equal(t, "10.5072/0003-rj0r", doc.ID())
	assert.Equal(t, "10.5072", doc["prefix"])
	assert.Equal(t, "registered", doc["state"])
	assert.Equal(t, 2024, doc["created_year"])
	assert.Empty(t, f.feed.docs, "non-findable identifiers stay off the feed")
}

func TestSyncFindableDOIAnnouncesOnFeed(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Context()
	d := seedDOI(t, f, doimodels.StateFindable)

	err := f.ix.syncDOI(ctx, jobs.NewJob(jobs.KindDOISyncIndex, d.DOI, testutil.FixedTime))
	require.NoError(t, err)

	require.Len(t, f.feed.docs, 1)
	assert.Equal(t, d.DOI, f.feed.docs[0].ID())
}

func TestSyncDOIDerivesUsageRollups(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Context()
	d := seedDOI(t, f, doimodels.StateFindable)

	subj := "https://doi.org/" + d.DOI
	for _, rel := range []struct {
		relation string
		total    int
	}{
		{"is-referenced-by", 1},
		{"cites", 1},
		{"unique-dataset-investigations-regular", 40},
		{"unique-dataset-requests-regular", 7},
	} {
		e, err := eventmodels.New(subj, "https://example.org/related", "datacite-usage",
			rel.relation, testutil.FixedTime, testutil.FixedTime)
		require.NoError(t, err)
		e.Total = rel.total
		require.NoError(t, f.events.Create(ctx, e))
	}

	require.NoError(t, f.ix.syncDOI(ctx, jobs.NewJob(jobs.KindDOISyncIndex, d.DOI, testutil.FixedTime)))

	result, err := f.backend.Search(ctx, IndexDOIs, search.Query{Size: 10})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	doc := result.Documents[0]
	assert.Equal(t, 2, doc["citation_count"])
	assert.Equal(t, 40, doc["view_count"])
	assert.Equal(t, 7, doc["download_count"])
}

func TestSyncFindableDOISkipsFeedForRegistrationAgency(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Context()
	c, err := registrymodels.NewClient("SAMPLE.REPO", "SAMPLE", "Sample Mirror",
		"repo@sample.org", testutil.FixedTime)
	require.NoError(t, err)
	c.ClientType = registrymodels.ClientTypeRegistrationAgency
	require.NoError(t, f.clients.Create(ctx, c))
	d := seedDOI(t, f, doimodels.StateFindable)

	require.NoError(t, f.ix.syncDOI(ctx, jobs.NewJob(jobs.KindDOISyncIndex, d.DOI, testutil.FixedTime)))

	result, err := f.backend.Search(ctx, IndexDOIs, search.Query{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total, "the projection is still indexed")
	assert.Empty(t, f.feed.docs, "mirrored identifiers stay off the feed")
}

func TestSyncDeletedRecordRemovesProjection(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Context()
	d := seedDOI(t, f, doimodels.StateDraft)

	require.NoError(t, f.ix.syncDOI(ctx, jobs.NewJob(jobs.KindDOISyncIndex, d.DOI, testutil.FixedTime)))
	require.NoError(t, f.dois.Delete(ctx, d.DOI))

	// A stale job for the now-deleted record converges on removal.
	require.NoError(t, f.ix.syncDOI(ctx, jobs.NewJob(jobs.KindDOISyncIndex, d.DOI, testutil.FixedTime)))

	result, err := f.backend.Search(ctx, IndexDOIs, search.Query{Size: 10})
	require.NoError(t, err)
	assert.Zero(t, result.Total)
}

func TestRemoveNowToleratesMissingDocument(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.ix.RemoveNow(testutil.Context(), IndexDOIs, "10.5072/never-indexed"))
}

func TestSyncClientProjection(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Context()
	c, err := registrymodels.NewClient("SAMPLE.REPO", "SAMPLE", "Sample Repository",
		"repo@sample.org", testutil.FixedTime)
	require.NoError(t, err)
	require.NoError(t, f.clients.Create(ctx, c))

	err = f.ix.syncClient(ctx, jobs.NewJob(jobs.KindClientSyncIndex, c.Symbol, testutil.FixedTime))
	require.NoError(t, err)

	result, err := f.backend.Search(ctx, IndexClients, search.Query{Size: 10})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "sample.repo", result.Documents[0].ID(), "document id is the lowercase symbol")
	assert.Equal(t, "SAMPLE", result.Documents[0]["provider_id"])
}

func TestSyncEventProjectionCarriesExtractedDOI(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Context()
	e, err := eventmodels.New("https://doi.org/10.5072/0003-rj0r", "https://example.org/article",
		"crossref", "is-referenced-by", testutil.FixedTime, testutil.FixedTime)
	require.NoError(t, err)
	require.NoError(t, f.events.Create(ctx, e))

	err = f.ix.syncEvent(ctx, jobs.NewJob(jobs.KindEventSyncIndex, e.UUID, testutil.FixedTime))
	require.NoError(t, err)

	result, err := f.backend.Search(ctx, IndexEvents, search.Query{Size: 10})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	doc := result.Documents[0]
	assert.Equal(t, "10.5072/0003-rj0r", doc["doi"])
	assert.Equal(t, "10.5072", doc["prefix"])
	assert.Equal(t, "2024-05", doc["year_month"])
}

func TestEnqueueAndWorkerPoolDrainQueue(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(testutil.Context())
	defer cancel()

	d := seedDOI(t, f, doimodels.StateFindable)
	require.NoError(t, f.ix.Enqueue(ctx, jobs.KindDOISyncIndex, d.DOI))

	go RunPool(ctx, f.queue, 4)

	assert.Eventually(t, func() bool {
		result, err := f.backend.Search(context.Background(), IndexDOIs, search.Query{Size: 10})
		return err == nil && result.Total == 1
	}, 2*time.Second, 5*time.Millisecond)
}
