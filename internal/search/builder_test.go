package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"doria/pkg/domainerrors"
)

func seedDOIs(t *testing.T, backend *InMemory, n int) {
	t.Helper()
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		doi := fmt.Sprintf("10.5072/%04d-doc", i)
		created := base.Add(time.Duration(i) * time.Hour)
		state := "findable"
		if i%5 == 0 {
			state = "draft"
		}
		doc := Document{
			"id":           doi,
			"doi":          doi,
			"name":         fmt.Sprintf("record %04d", i),
			"title":        fmt.Sprintf("Dataset %d", i),
			"state":        state,
			"client_id":    "sample.repo",
			"provider_id":  "sample",
			"prefix":       "10.5072",
			"created":      created.Format(time.RFC3339),
			"created_year": created.Year(),
		}
		require.NoError(t, backend.Index(context.Background(), "dois", doi, doc))
	}
}

func newTestBuilder(t *testing.T) (*Builder, *InMemory) {
	t.Helper()
	backend := NewInMemory()
	return NewBuilder(backend, zap.NewNop(), Deterministic()), backend
}

func TestOffsetPageEqualsSliceOfFullResult(t *testing.T) {
	b, backend := newTestBuilder(t)
	seedDOIs(t, backend, 120)
	ctx := context.Background()

	full, err := b.Query(ctx, KindDOI, Request{
		Sort: "created",
		Page: Page{Number: 1, Size: 1000},
	})
	require.NoError(t, err)
	require.Equal(t, 120, full.Total)

	page, err := b.Query(ctx, KindDOI, Request{
		Sort: "created",
		Page: Page{Number: 3, Size: 25},
	})
	require.NoError(t, err)

	assert.Equal(t, 120, page.Total, "total reflects the filtered count before pagination")
	assert.Equal(t, 5, page.TotalPages)
	require.Len(t, page.Results, 25)
	for i, doc := range page.Results {
		assert.Equal(t, full.Results[50+i].ID(), doc.ID(), "page 3 must equal slice [50:75)")
	}
}

func TestCursorPagingCoversAllDocumentsOnce(t *testing.T) {
	b, backend := newTestBuilder(t)
	seedDOIs(t, backend, 97)
	ctx := context.Background()

	seen := make(map[string]int)
	cursor := []string{}
	pages := 0
	for {
		resp, err := b.Query(ctx, KindDOI, Request{
			// A sort parameter is supplied on purpose; cursor mode must
			// override it with the fixed tiebreak sort.
			Sort: "-name",
			Page: Page{Size: 10, Cursor: cursor},
		})
		require.NoError(t, err)
		if len(resp.Results) == 0 {
			break
		}
		for _, doc := range resp.Results {
			seen[doc.ID()]++
		}
		cursor = resp.NextCursor
		pages++
		require.LessOrEqual(t, pages, 20, "cursor paging must terminate")
	}

	assert.Len(t, seen, 97, "every document appears")
	for id, count := range seen {
		assert.Equal(t, 1, count, "document %s must appear exactly once", id)
	}
	assert.Equal(t, 10, pages)
}

func TestCursorDepthIsUnbounded(t *testing.T) {
	b, backend := newTestBuilder(t)
	seedDOIs(t, backend, 30)
	ctx := context.Background()

	// Offset mode clamps number*size to 10000.
	resp, err := b.Query(ctx, KindDOI, Request{Page: Page{Number: 9999, Size: 1000}})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)

	// Cursor mode has no depth clamp: walk past the offset bound worth of
	// pages without rejection.
	cursor := []string{}
	for i := 0; i < 15; i++ {
		resp, err := b.Query(ctx, KindDOI, Request{Page: Page{Size: 2, Cursor: cursor}})
		require.NoError(t, err)
		if len(resp.Results) == 0 {
			break
		}
		cursor = resp.NextCursor
	}
}

func TestSizeClamps(t *testing.T) {
	b, backend := newTestBuilder(t)
	seedDOIs(t, backend, 5)
	ctx := context.Background()

	resp, err := b.Query(ctx, KindDOI, Request{Page: Page{Size: -3}})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 5, "non-positive size falls back to the default")

	resp, err = b.Query(ctx, KindDOI, Request{Page: Page{Size: 5000}})
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Total)
}

func TestFiltersAndUnknownFiltersIgnored(t *testing.T) {
	b, backend := newTestBuilder(t)
	seedDOIs(t, backend, 20)
	ctx := context.Background()

	resp, err := b.Query(ctx, KindDOI, Request{
		Filters: map[string]string{
			"state":       "findable",
			"client_id":   "SAMPLE.REPO",
			"no_such_key": "ignored",
		},
		Page: Page{Size: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, 16, resp.Total, "20 docs minus 4 drafts")
	for _, doc := range resp.Results {
		assert.Equal(t, "findable", doc["state"])
	}
}

func TestYearRangeFilter(t *testing.T) {
	b, backend := newTestBuilder(t)
	ctx := context.Background()
	for year := 2018; year <= 2023; year++ {
		id := fmt.Sprintf("10.5072/y%d", year)
		require.NoError(t, backend.Index(ctx, "dois", id, Document{
			"id": id, "doi": id, "state": "findable", "created_year": year,
			"created": fmt.Sprintf("%d-01-01T00:00:00Z", year), "name": id,
		}))
	}

	resp, err := b.Query(ctx, KindDOI, Request{
		Filters: map[string]string{"created": "2022,2019"},
		Page:    Page{Size: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Total, "range is inclusive and order-insensitive")
}

func TestAggregationsSkipEmptyBuckets(t *testing.T) {
	b, backend := newTestBuilder(t)
	seedDOIs(t, backend, 10)
	ctx := context.Background()

	resp, err := b.Query(ctx, KindDOI, Request{Page: Page{Size: 1}})
	require.NoError(t, err)

	states := resp.Aggregations["states"]
	require.NotEmpty(t, states)
	for _, bucket := range states {
		assert.GreaterOrEqual(t, bucket.Count, 1)
		assert.NotEmpty(t, bucket.ID)
		assert.NotEmpty(t, bucket.Title)
	}
	assert.Equal(t, "findable", states[0].ID, "largest bucket first")
	assert.Equal(t, 8, states[0].Count)
}

func TestFreeTextAliasRewriteAndEscaping(t *testing.T) {
	assert.Equal(t, `publication_year:2020`, normalizeQueryString("publicationYear:2020"))
	assert.Equal(t, `landing_page.status:200`, normalizeQueryString("landingPage.status:200"))
	assert.Equal(t, `10.5072\/abcd`, normalizeQueryString("10.5072/abcd"))
}

func TestFreeTextQuery(t *testing.T) {
	b, backend := newTestBuilder(t)
	seedDOIs(t, backend, 10)
	ctx := context.Background()

	resp, err := b.Query(ctx, KindDOI, Request{
		Query: "doi:10.5072/0003-doc",
		Page:  Page{Size: 10},
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "10.5072/0003-doc", resp.Results[0].ID())
}

func TestMalformedQuerySurfacesBadRequest(t *testing.T) {
	b, backend := newTestBuilder(t)
	seedDOIs(t, backend, 3)

	_, err := b.Query(context.Background(), KindDOI, Request{
		Query: `title:"unbalanced`,
		Page:  Page{Size: 10},
	})
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeBadRequest))
	assert.Contains(t, err.Error(), "unbalanced quotes")
}

func TestRandomSamplingDeterministicSeed(t *testing.T) {
	b, backend := newTestBuilder(t)
	seedDOIs(t, backend, 40)
	ctx := context.Background()

	first, err := b.Query(ctx, KindDOI, Request{Random: true, Sort: "-created", Page: Page{Size: 10}})
	require.NoError(t, err)
	second, err := b.Query(ctx, KindDOI, Request{Random: true, Page: Page{Size: 10}})
	require.NoError(t, err)

	require.Len(t, first.Results, 10)
	for i := range first.Results {
		assert.Equal(t, first.Results[i].ID(), second.Results[i].ID(),
			"deterministic mode must reproduce the sample")
	}

	ordered, err := b.Query(ctx, KindDOI, Request{Sort: "name", Page: Page{Size: 10}})
	require.NoError(t, err)
	sameOrder := true
	for i := range ordered.Results {
		if ordered.Results[i].ID() != first.Results[i].ID() {
			sameOrder = false
			break
		}
	}
	assert.False(t, sameOrder, "random ordering should differ from sorted ordering")
}

func TestSoftDeletedProvidersExcluded(t *testing.T) {
	b, backend := newTestBuilder(t)
	ctx := context.Background()
	require.NoError(t, backend.Index(ctx, "providers", "sample", Document{
		"id": "sample", "name": "Sample Org", "region": "EMEA", "created_year": 2019,
		"created": "2019-01-01T00:00:00Z",
	}))
	require.NoError(t, backend.Index(ctx, "providers", "gone", Document{
		"id": "gone", "name": "Gone Org", "region": "EMEA", "created_year": 2018,
		"created": "2018-01-01T00:00:00Z", "deleted_at": "2023-01-01T00:00:00Z",
	}))

	resp, err := b.Query(ctx, KindProvider, Request{Page: Page{Size: 10}})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "sample", resp.Results[0].ID())

	resp, err = b.Query(ctx, KindProvider, Request{
		Filters: map[string]string{"include_deleted": "true"},
		Page:    Page{Size: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)
}

func TestSortFallback(t *testing.T) {
	assert.Equal(t, []SortKey{{Field: "name"}}, resolveSort("bogus"))
	assert.Equal(t, []SortKey{{Field: "name", Desc: true}}, resolveSort("-name"))
	assert.Equal(t, []SortKey{{Field: "_score", Desc: true}}, resolveSort("relevance"))
}

func TestFindByIDs(t *testing.T) {
	b, backend := newTestBuilder(t)
	seedDOIs(t, backend, 10)

	resp, err := b.FindByIDs(context.Background(), KindDOI, []string{"10.5072/0001-doc", "10.5072/0004-doc"})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "10.5072/0001-doc", resp.Results[0].ID())
}
