// Package search translates high-level filter/sort/pagination requests into
// structured queries against a generic document search backend.
//
// The backend surface is deliberately small: term/terms/range/exists
// predicates inside a bool query, bucketed terms aggregations, offset and
// search-after pagination, and randomized ordering. The package owns the
// query-building and result-shaping logic; it never reads from the system of
// record.
package search

import (
	"context"
	"fmt"
)

// Kind selects an entity descriptor. Filter and aggregation sets are declared
// per kind in spec.go; dispatch is by this tag, never by runtime type
// inspection.
type Kind string

const (
	KindDOI      Kind = "doi"
	KindClient   Kind = "client"
	KindProvider Kind = "provider"
	KindEvent    Kind = "event"
)

// Page selects one of two mutually exclusive pagination modes. A non-empty
// Cursor always wins over Number/Size offset paging and forces the entity's
// fixed tiebreak sort.
type Page struct {
	Number int
	Size   int
	// Cursor is the ordered tuple of sort-key values from the last row of
	// the previous page (search-after semantics). Depth is unbounded.
	Cursor []string
}

// Request is a high-level search request for one entity kind.
type Request struct {
	// Query is a free-text query-string expression. Known camelCase field
	// aliases are rewritten to their underscored index names and path
	// separators are escaped before it reaches the backend.
	Query string
	// Filters maps filter parameter names to raw values. Unknown names for
	// the entity kind are ignored, not errors.
	Filters map[string]string
	// Sort is one of relevance, name, -name, created, -created.
	// Unrecognized values fall back to name ascending.
	Sort string
	Page Page
	// Random requests randomized ordering for sampling. Sort is ignored.
	Random bool
	// SampleGroup optionally buckets random samples by a field, keeping
	// SampleSize hits per bucket.
	SampleGroup string
	SampleSize  int
	// Totals switches to the reduced totals aggregation set.
	Totals bool
}

// PredicateKind enumerates the backend's filter primitives.
type PredicateKind string

const (
	PredicateTerm        PredicateKind = "term"
	PredicateTerms       PredicateKind = "terms"
	PredicateRange       PredicateKind = "range"
	PredicateExists      PredicateKind = "exists"
	PredicateQueryString PredicateKind = "query_string"
)

// Predicate is one filter clause of a bool query.
type Predicate struct {
	Kind   PredicateKind `json:"kind"`
	Field  string        `json:"field,omitempty"`
	Values []string      `json:"values,omitempty"`
	// GTE/LTE bound an inclusive range; Format "yyyy" marks year semantics.
	GTE    string   `json:"gte,omitempty"`
	LTE    string   `json:"lte,omitempty"`
	Format string   `json:"format,omitempty"`
	Fields []string `json:"fields,omitempty"` // query_string target fields
}

// SortKey is one field of a compound sort.
type SortKey struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// AggSpec requests a bucketed terms aggregation. Buckets below MinDocCount
// are dropped.
type AggSpec struct {
	Name        string `json:"name"`
	Field       string `json:"field"`
	Size        int    `json:"size"`
	MinDocCount int    `json:"min_doc_count"`
	// SampleSize > 0 keeps top hits per bucket (sample grouping).
	SampleSize int `json:"sample_size,omitempty"`
}

// Query is the structured query handed to the backend.
type Query struct {
	Must    []Predicate `json:"must,omitempty"`
	MustNot []Predicate `json:"must_not,omitempty"`

	From        int       `json:"from"`
	Size        int       `json:"size"`
	SearchAfter []string  `json:"search_after,omitempty"`
	Sort        []SortKey `json:"sort,omitempty"`
	// RandomSeed, when non-empty, requests randomized ordering and voids Sort.
	RandomSeed string `json:"random_seed,omitempty"`

	Aggregations []AggSpec `json:"aggregations,omitempty"`
}

// Document is a denormalized as-indexed projection. Every document carries a
// stable "id" field.
type Document map[string]any

// ID returns the document's stable identifier.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// Bucket is one facet row.
type Bucket struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Count int    `json:"count"`
}

// Result is the backend's answer before response shaping.
type Result struct {
	Documents    []Document
	Total        int
	Aggregations map[string][]Bucket
}

// Backend is the document search engine surface the builder targets.
type Backend interface {
	Search(ctx context.Context, index string, q Query) (Result, error)
	Index(ctx context.Context, index, id string, doc Document) error
	// Delete removes a document; deleting an absent document returns
	// sentinel.ErrNotFound, which callers treat as success.
	Delete(ctx context.Context, index, id string) error
}

// ParseError reports a query the backend rejected as malformed. The builder
// converts it into a bad_request domain error carrying Reason, keeping the
// raw backend failure out of caller-visible output.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("query parse rejected: %s", e.Reason)
}
