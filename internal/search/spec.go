package search

import "strings"

// filterKind enumerates how a filter parameter maps onto a predicate.
type filterKind int

const (
	// filterTerm matches a single exact value.
	filterTerm filterKind = iota
	// filterTerms splits the raw value on commas into a multi-value match.
	filterTerms
	// filterYearRange reads "2019" or "2019,2023" as an inclusive year range.
	filterYearRange
	// filterExists requires the field to be present, regardless of value.
	filterExists
)

// filterSpec declares one legal filter parameter for an entity kind.
type filterSpec struct {
	Param     string
	Field     string
	Kind      filterKind
	Transform func(string) string
}

// descriptor declares an entity kind's index, legal filters, aggregations and
// cursor tiebreak sort.
type descriptor struct {
	Index       string
	QueryFields []string
	Filters     []filterSpec
	// CursorSort is the fixed tiebreak sort applied whenever a cursor is
	// present, overriding any requested sort so pages stay stable under
	// concurrent writes.
	CursorSort []SortKey
	// SoftDeletes adds a must_not exists(deleted_at) clause unless the
	// include_deleted filter is set.
	SoftDeletes  bool
	Aggregations []AggSpec
	// TotalsAggregations is the reduced set used for count-only views.
	TotalsAggregations []AggSpec
}

var lower = strings.ToLower

var descriptors = map[Kind]descriptor{
	KindDOI: {
		Index:       "dois",
		QueryFields: []string{"doi", "title", "publisher", "creators.name", "subjects.subject"},
		Filters: []filterSpec{
			{Param: "state", Field: "state", Kind: filterTerms},
			{Param: "client_id", Field: "client_id", Kind: filterTerms, Transform: lower},
			{Param: "provider_id", Field: "provider_id", Kind: filterTerms, Transform: lower},
			{Param: "prefix", Field: "prefix", Kind: filterTerms},
			{Param: "uid", Field: "doi", Kind: filterTerm, Transform: lower},
			{Param: "resource_type_id", Field: "resource_type", Kind: filterTerm},
			{Param: "created", Field: "created_year", Kind: filterYearRange},
			{Param: "registered", Field: "registered_year", Kind: filterYearRange},
			{Param: "person_id", Field: "creators.id", Kind: filterTerm,
				Transform: func(v string) string { return "https://orcid.org/" + v }},
			{Param: "link_checked", Field: "landing_page.checked", Kind: filterExists},
		},
		CursorSort: []SortKey{{Field: "created"}, {Field: "doi"}},
		Aggregations: []AggSpec{
			{Name: "states", Field: "state", Size: 3, MinDocCount: 1},
			{Name: "created", Field: "created_year", Size: 10, MinDocCount: 1},
			{Name: "prefixes", Field: "prefix", Size: 10, MinDocCount: 1},
			{Name: "clients", Field: "client_id", Size: 10, MinDocCount: 1},
			{Name: "resource_types", Field: "resource_type", Size: 10, MinDocCount: 1},
		},
		TotalsAggregations: []AggSpec{
			{Name: "states", Field: "state", Size: 3, MinDocCount: 1},
		},
	},
	KindClient: {
		Index:       "clients",
		QueryFields: []string{"symbol", "name", "contact_email", "re3data_id"},
		Filters: []filterSpec{
			{Param: "provider_id", Field: "provider_id", Kind: filterTerms, Transform: lower},
			{Param: "software", Field: "software", Kind: filterTerms},
			{Param: "year", Field: "created_year", Kind: filterYearRange},
			{Param: "client_type", Field: "client_type", Kind: filterTerm},
			{Param: "repository_id", Field: "re3data_id", Kind: filterTerm, Transform: escapeSlashes},
		},
		CursorSort:  []SortKey{{Field: "created"}, {Field: "id"}},
		SoftDeletes: true,
		Aggregations: []AggSpec{
			{Name: "years", Field: "created_year", Size: 10, MinDocCount: 1},
			{Name: "providers", Field: "provider_id", Size: 10, MinDocCount: 1},
			{Name: "software", Field: "software", Size: 10, MinDocCount: 1},
		},
		TotalsAggregations: []AggSpec{
			{Name: "years", Field: "created_year", Size: 10, MinDocCount: 1},
		},
	},
	KindProvider: {
		Index:       "providers",
		QueryFields: []string{"symbol", "name", "contact_email", "website"},
		Filters: []filterSpec{
			{Param: "year", Field: "created_year", Kind: filterYearRange},
			{Param: "region", Field: "region", Kind: filterTerm, Transform: strings.ToUpper},
			{Param: "member_type", Field: "member_type", Kind: filterTerm},
			{Param: "organization_type", Field: "organization_type", Kind: filterTerm},
			{Param: "focus_area", Field: "focus_area", Kind: filterTerm},
		},
		CursorSort:  []SortKey{{Field: "created"}, {Field: "id"}},
		SoftDeletes: true,
		Aggregations: []AggSpec{
			{Name: "years", Field: "created_year", Size: 10, MinDocCount: 1},
			{Name: "regions", Field: "region", Size: 10, MinDocCount: 1},
			{Name: "member_types", Field: "member_type", Size: 10, MinDocCount: 1},
			{Name: "organization_types", Field: "organization_type", Size: 10, MinDocCount: 1},
			{Name: "focus_areas", Field: "focus_area", Size: 10, MinDocCount: 1},
		},
		TotalsAggregations: []AggSpec{
			{Name: "regions", Field: "region", Size: 10, MinDocCount: 1},
		},
	},
	KindEvent: {
		Index:       "events",
		QueryFields: []string{"subj_id", "obj_id", "source_id", "relation_type_id"},
		Filters: []filterSpec{
			{Param: "subj_id", Field: "subj_id", Kind: filterTerm},
			{Param: "obj_id", Field: "obj_id", Kind: filterTerm},
			{Param: "doi", Field: "doi", Kind: filterTerms, Transform: lower},
			{Param: "prefix", Field: "prefix", Kind: filterTerms},
			{Param: "source_id", Field: "source_id", Kind: filterTerms},
			{Param: "relation_type_id", Field: "relation_type_id", Kind: filterTerms},
			{Param: "citation_type", Field: "citation_type", Kind: filterTerm},
			{Param: "year_month", Field: "year_month", Kind: filterTerm},
			{Param: "occurred_at", Field: "occurred_year", Kind: filterYearRange},
		},
		CursorSort: []SortKey{{Field: "created"}, {Field: "uuid"}},
		Aggregations: []AggSpec{
			{Name: "sources", Field: "source_id", Size: 50, MinDocCount: 1},
			{Name: "relation_types", Field: "relation_type_id", Size: 50, MinDocCount: 1},
			{Name: "citation_types", Field: "citation_type", Size: 50, MinDocCount: 1},
		},
		TotalsAggregations: []AggSpec{
			{Name: "relation_types", Field: "relation_type_id", Size: 50, MinDocCount: 1},
		},
	},
}

func escapeSlashes(v string) string {
	return strings.ReplaceAll(v, "/", `\/`)
}

// fieldAliases rewrites camelCase aliases in free-text queries to their
// underscored index field names.
var fieldAliases = [][2]string{
	{"publicationYear", "publication_year"},
	{"relatedIdentifiers", "related_identifiers"},
	{"rightsList", "rights_list"},
	{"fundingReferences", "funding_references"},
	{"geoLocations", "geo_locations"},
	{"landingPage", "landing_page"},
	{"contentUrl", "content_url"},
}
