package httpapi

import (
	"net/url"
	"strconv"
	"strings"

	"doria/internal/search"
)

// reservedParams are query parameters with dedicated meaning; everything else
// is passed through as a filter and validated per entity kind (unknown
// filters are ignored there).
var reservedParams = map[string]bool{
	"query":        true,
	"sort":         true,
	"page[number]": true,
	"page[size]":   true,
	"page[cursor]": true,
	"random":       true,
	"sample_group": true,
	"sample_size":  true,
	"totals":       true,
}

// parseSearchRequest maps URL query parameters onto a search request. The
// presence of page[cursor], even empty, selects cursor paging.
func parseSearchRequest(values url.Values) search.Request {
	req := search.Request{
		Query:   values.Get("query"),
		Sort:    values.Get("sort"),
		Filters: map[string]string{},
	}
	req.Page.Number, _ = strconv.Atoi(values.Get("page[number]"))
	req.Page.Size, _ = strconv.Atoi(values.Get("page[size]"))
	if values.Has("page[cursor]") {
		req.Page.Cursor = decodeCursor(values.Get("page[cursor]"))
	}
	req.Random = values.Get("random") == "true"
	req.SampleGroup = values.Get("sample_group")
	req.SampleSize, _ = strconv.Atoi(values.Get("sample_size"))
	req.Totals = values.Get("totals") == "true"

	for param := range values {
		if reservedParams[param] {
			continue
		}
		req.Filters[param] = values.Get(param)
	}
	return req
}

// decodeCursor splits the comma-joined sort-key tuple. An empty value means
// "cursor mode from the beginning".
func decodeCursor(raw string) []string {
	if raw == "" {
		return []string{}
	}
	return strings.Split(raw, ",")
}

func encodeCursor(cursor []string) string {
	return strings.Join(cursor, ",")
}
