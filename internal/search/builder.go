package search

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"go.uber.org/zap"

	"doria/pkg/domainerrors"
	platformstrings "doria/pkg/platform/strings"
)

const (
	defaultPageSize = 25
	maxPageSize     = 1000
	// maxOffsetDepth bounds number*size in offset mode to cap index cost.
	// Cursor mode is deliberately unbounded; it is the sanctioned
	// deep-pagination path.
	maxOffsetDepth = 10000
)

// Response is the shaped query answer.
type Response struct {
	Results []Document
	Total   int
	// TotalPages is only meaningful in offset mode; it is zero in cursor mode.
	TotalPages int
	// NextCursor carries the sort-key tuple of the last row for the next
	// cursor-mode request. Empty when the page was empty or in offset mode.
	NextCursor   []string
	Aggregations map[string][]Bucket
}

// Builder turns Requests into backend queries for each entity kind.
type Builder struct {
	backend       Backend
	log           *zap.Logger
	deterministic bool
	seed          func() string
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// Deterministic pins the random-sampling seed so sampled orderings are
// reproducible. Set in tests.
func Deterministic() BuilderOption {
	return func(b *Builder) { b.deterministic = true }
}

func NewBuilder(backend Backend, log *zap.Logger, opts ...BuilderOption) *Builder {
	b := &Builder{backend: backend, log: log}
	for _, opt := range opts {
		opt(b)
	}
	b.seed = func() string {
		if b.deterministic {
			return "random_1234"
		}
		return fmt.Sprintf("random_%d", rand.Intn(100000)+1)
	}
	return b
}

// Query executes a search for one entity kind.
//
// Total always reflects the filtered count before pagination. A backend parse
// rejection is logged and surfaced as a bad_request domain error with a
// best-effort reason; the raw backend failure never reaches the caller.
func (b *Builder) Query(ctx context.Context, kind Kind, req Request) (*Response, error) {
	desc, ok := descriptors[kind]
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "unknown entity kind %q", kind)
	}

	q := Query{Size: clampSize(req.Page.Size)}

	cursorMode := req.Page.Cursor != nil
	if cursorMode {
		// Cursor paging overrides any requested sort with the entity's fixed
		// tiebreak so ordering stays stable across pages under concurrent
		// writes.
		q.SearchAfter = req.Page.Cursor
		if len(q.SearchAfter) == 0 {
			q.SearchAfter = nil
		}
		q.Sort = desc.CursorSort
	} else {
		number := req.Page.Number
		if number < 1 {
			number = 1
		}
		if maxNumber := maxOffsetDepth / q.Size; number > maxNumber {
			number = maxNumber
		}
		q.From = (number - 1) * q.Size
		q.Sort = resolveSort(req.Sort)
	}

	if text := normalizeQueryString(req.Query); text != "" {
		q.Must = append(q.Must, Predicate{
			Kind:   PredicateQueryString,
			Values: []string{text},
			Fields: desc.QueryFields,
		})
	}

	includeDeleted := false
	for _, spec := range desc.Filters {
		raw, ok := req.Filters[spec.Param]
		if !ok || raw == "" {
			continue
		}
		if p, ok := buildPredicate(spec, raw); ok {
			q.Must = append(q.Must, p)
		}
	}
	if _, ok := req.Filters["include_deleted"]; ok {
		includeDeleted = true
	}
	if desc.SoftDeletes && !includeDeleted {
		q.MustNot = append(q.MustNot, Predicate{Kind: PredicateExists, Field: "deleted_at"})
	}

	if req.Random {
		// Randomized sampling ignores ordering entirely.
		q.Sort = nil
		q.SearchAfter = nil
		q.RandomSeed = b.seed()
	}

	q.Aggregations = desc.Aggregations
	if req.Totals {
		q.Aggregations = desc.TotalsAggregations
	}
	if req.SampleGroup != "" {
		sampleSize := req.SampleSize
		if sampleSize < 1 {
			sampleSize = 1
		}
		q.Aggregations = append(q.Aggregations, AggSpec{
			Name: "samples", Field: req.SampleGroup, Size: maxOffsetDepth,
			MinDocCount: 1, SampleSize: sampleSize,
		})
	}

	result, err := b.backend.Search(ctx, desc.Index, q)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			b.log.Warn("search backend rejected query",
				zap.String("kind", string(kind)),
				zap.String("reason", parseErr.Reason),
				zap.Error(err))
			return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "query was rejected: %s", parseErr.Reason)
		}
		b.log.Error("search backend failure", zap.String("kind", string(kind)), zap.Error(err))
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "search backend unavailable")
	}

	resp := &Response{
		Results:      result.Documents,
		Total:        result.Total,
		Aggregations: result.Aggregations,
	}
	if cursorMode {
		if len(result.Documents) > 0 {
			resp.NextCursor = cursorOf(result.Documents[len(result.Documents)-1], desc.CursorSort)
		}
	} else {
		resp.TotalPages = (result.Total + q.Size - 1) / q.Size
	}
	return resp, nil
}

// FindByIDs returns the documents for an explicit identifier list.
func (b *Builder) FindByIDs(ctx context.Context, kind Kind, ids []string) (*Response, error) {
	desc, ok := descriptors[kind]
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "unknown entity kind %q", kind)
	}
	ids = platformstrings.DedupeAndTrim(ids)
	result, err := b.backend.Search(ctx, desc.Index, Query{
		Size:         len(ids),
		Must:         []Predicate{{Kind: PredicateTerms, Field: "id", Values: ids}},
		Sort:         []SortKey{{Field: "id"}},
		Aggregations: desc.TotalsAggregations,
	})
	if err != nil {
		b.log.Error("search backend failure", zap.String("kind", string(kind)), zap.Error(err))
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "search backend unavailable")
	}
	return &Response{Results: result.Documents, Total: result.Total, Aggregations: result.Aggregations}, nil
}

func clampSize(size int) int {
	switch {
	case size < 1:
		return defaultPageSize
	case size > maxPageSize:
		return maxPageSize
	default:
		return size
	}
}

func resolveSort(sort string) []SortKey {
	switch sort {
	case "relevance":
		return []SortKey{{Field: "_score", Desc: true}}
	case "-name":
		return []SortKey{{Field: "name", Desc: true}}
	case "created":
		return []SortKey{{Field: "created"}}
	case "-created":
		return []SortKey{{Field: "created", Desc: true}}
	default:
		return []SortKey{{Field: "name"}}
	}
}

func buildPredicate(spec filterSpec, raw string) (Predicate, bool) {
	transform := spec.Transform
	if transform == nil {
		transform = func(v string) string { return v }
	}
	switch spec.Kind {
	case filterTerm:
		return Predicate{Kind: PredicateTerm, Field: spec.Field, Values: []string{transform(raw)}}, true
	case filterTerms:
		parts := platformstrings.DedupeAndTrim(strings.Split(raw, ","))
		for i := range parts {
			parts[i] = transform(parts[i])
		}
		if len(parts) == 0 {
			return Predicate{}, false
		}
		return Predicate{Kind: PredicateTerms, Field: spec.Field, Values: parts}, true
	case filterYearRange:
		gte, lte := yearBounds(raw)
		return Predicate{Kind: PredicateRange, Field: spec.Field, GTE: gte, LTE: lte, Format: "yyyy"}, true
	case filterExists:
		return Predicate{Kind: PredicateExists, Field: spec.Field}, true
	}
	return Predicate{}, false
}

// yearBounds reads "2019" or "2019,2023" (any order) into inclusive bounds.
func yearBounds(raw string) (string, string) {
	parts := strings.Split(raw, ",")
	min, max := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[0])
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	return min, max
}

func normalizeQueryString(text string) string {
	if text == "" {
		return ""
	}
	for _, alias := range fieldAliases {
		text = strings.ReplaceAll(text, alias[0], alias[1])
	}
	return strings.ReplaceAll(text, "/", `\/`)
}

func cursorOf(doc Document, sort []SortKey) []string {
	cursor := make([]string, 0, len(sort))
	for _, key := range sort {
		cursor = append(cursor, fmt.Sprint(doc[key.Field]))
	}
	return cursor
}
