package search

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"

	"doria/pkg/platform/sentinel"
)

// InMemory is a document backend for local development and tests. It
// implements the same query surface as a real engine: bool filtering,
// compound sorts, search-after, seeded random ordering and terms
// aggregations.
type InMemory struct {
	mu      sync.RWMutex
	indexes map[string]map[string]Document
}

func NewInMemory() *InMemory {
	return &InMemory{indexes: make(map[string]map[string]Document)}
}

func (m *InMemory) Index(_ context.Context, index, id string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexes[index] == nil {
		m.indexes[index] = make(map[string]Document)
	}
	m.indexes[index][id] = doc
	return nil
}

func (m *InMemory) Delete(_ context.Context, index, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[index][id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(m.indexes[index], id)
	return nil
}

func (m *InMemory) Search(_ context.Context, index string, q Query) (Result, error) {
	if err := validateQuery(q); err != nil {
		return Result{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []Document
	for _, doc := range m.indexes[index] {
		ok, err := matchesAll(doc, q.Must)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			continue
		}
		excluded, err := matchesAny(doc, q.MustNot)
		if err != nil {
			return Result{}, err
		}
		if excluded {
			continue
		}
		matched = append(matched, doc)
	}

	aggs := aggregate(matched, q.Aggregations)
	total := len(matched)

	switch {
	case q.RandomSeed != "":
		shuffle(matched, q.RandomSeed)
	case len(q.Sort) > 0:
		sortDocs(matched, q.Sort)
	default:
		sortDocs(matched, []SortKey{{Field: "id"}})
	}

	if len(q.SearchAfter) > 0 {
		matched = after(matched, q.Sort, q.SearchAfter)
	}

	if q.From > 0 {
		if q.From >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.From:]
		}
	}
	if q.Size >= 0 && q.Size < len(matched) {
		matched = matched[:q.Size]
	}

	return Result{Documents: matched, Total: total, Aggregations: aggs}, nil
}

func matchesAll(doc Document, preds []Predicate) (bool, error) {
	for _, p := range preds {
		ok, err := matches(doc, p)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchesAny(doc Document, preds []Predicate) (bool, error) {
	for _, p := range preds {
		ok, err := matches(doc, p)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func matches(doc Document, p Predicate) (bool, error) {
	switch p.Kind {
	case PredicateTerm, PredicateTerms:
		for _, want := range p.Values {
			for _, have := range fieldValues(doc, p.Field) {
				if have == want {
					return true, nil
				}
			}
		}
		return false, nil
	case PredicateRange:
		for _, have := range fieldValues(doc, p.Field) {
			if (p.GTE == "" || compare(have, p.GTE) >= 0) &&
				(p.LTE == "" || compare(have, p.LTE) <= 0) {
				return true, nil
			}
		}
		return false, nil
	case PredicateExists:
		return len(fieldValues(doc, p.Field)) > 0, nil
	case PredicateQueryString:
		if len(p.Values) == 0 {
			return false, nil
		}
		return matchQueryString(doc, p.Values[0], p.Fields), nil
	default:
		return false, &ParseError{Reason: fmt.Sprintf("unsupported predicate kind %q", p.Kind)}
	}
}

// validateQuery rejects malformed query strings before any document is
// considered. A malformed query is an input error regardless of what the
// index holds, so an empty index must not mask it.
func validateQuery(q Query) error {
	for _, preds := range [][]Predicate{q.Must, q.MustNot} {
		for _, p := range preds {
			if p.Kind != PredicateQueryString || len(p.Values) == 0 {
				continue
			}
			if err := validateQueryString(p.Values[0]); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateQueryString(text string) error {
	if strings.Count(text, `"`)%2 != 0 {
		return &ParseError{Reason: "unbalanced quotes in query string"}
	}
	for _, clause := range strings.Fields(text) {
		if strings.HasPrefix(clause, ":") || strings.HasSuffix(clause, ":") {
			return &ParseError{Reason: fmt.Sprintf("malformed clause %q", clause)}
		}
	}
	return nil
}

// matchQueryString evaluates a minimal query-string grammar: whitespace
// separated clauses, each either field:value or a bare term matched against
// the listed fields. A trailing * on a value is a prefix wildcard. The text
// has already passed validateQueryString.
func matchQueryString(doc Document, text string, fields []string) bool {
	for _, clause := range strings.Fields(text) {
		field, value, hasField := strings.Cut(clause, ":")
		targets := fields
		if hasField {
			targets = []string{field}
		} else {
			value = clause
		}
		value = strings.Trim(strings.ReplaceAll(value, `\/`, "/"), `"`)

		matched := false
		for _, target := range targets {
			for _, have := range fieldValues(doc, target) {
				if termMatch(have, value) {
					matched = true
					break
				}
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func termMatch(have, want string) bool {
	if prefix, ok := strings.CutSuffix(want, "*"); ok {
		return strings.HasPrefix(have, prefix)
	}
	return strings.EqualFold(have, want)
}

// fieldValues resolves a dotted field path into its scalar string values.
// Slices fan out; missing paths yield nothing.
func fieldValues(doc Document, path string) []string {
	var resolve func(v any, parts []string) []string
	resolve = func(v any, parts []string) []string {
		if len(parts) == 0 {
			switch vv := v.(type) {
			case nil:
				return nil
			case []string:
				return vv
			case []any:
				var out []string
				for _, item := range vv {
					out = append(out, fmt.Sprint(item))
				}
				return out
			default:
				return []string{fmt.Sprint(vv)}
			}
		}
		switch vv := v.(type) {
		case map[string]any:
			if next, ok := vv[parts[0]]; ok {
				return resolve(next, parts[1:])
			}
		case Document:
			if next, ok := vv[parts[0]]; ok {
				return resolve(next, parts[1:])
			}
		case []any:
			var out []string
			for _, item := range vv {
				out = append(out, resolve(item, parts)...)
			}
			return out
		}
		return nil
	}
	return resolve(map[string]any(doc), strings.Split(path, "."))
}

// compare orders two scalar strings, numerically when both parse as numbers.
func compare(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

func sortValue(doc Document, field string) string {
	values := fieldValues(doc, field)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func sortDocs(docs []Document, keys []SortKey) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range keys {
			c := compare(sortValue(docs[i], key.Field), sortValue(docs[j], key.Field))
			if c == 0 {
				continue
			}
			if key.Desc {
				return c > 0
			}
			return c < 0
		}
		return docs[i].ID() < docs[j].ID()
	})
}

// after drops every document at or before the cursor tuple in sort order.
func after(docs []Document, keys []SortKey, cursor []string) []Document {
	for i, doc := range docs {
		if tupleCompare(doc, keys, cursor) > 0 {
			return docs[i:]
		}
	}
	return nil
}

func tupleCompare(doc Document, keys []SortKey, cursor []string) int {
	for i, key := range keys {
		if i >= len(cursor) {
			break
		}
		c := compare(sortValue(doc, key.Field), cursor[i])
		if c == 0 {
			continue
		}
		if key.Desc {
			return -c
		}
		return c
	}
	return 0
}

func shuffle(docs []Document, seed string) {
	h := fnv.New64a()
	h.Write([]byte(seed))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	// Shuffle over a deterministic base order so equal seeds give equal
	// samples regardless of map iteration.
	sortDocs(docs, []SortKey{{Field: "id"}})
	rng.Shuffle(len(docs), func(i, j int) { docs[i], docs[j] = docs[j], docs[i] })
}

func aggregate(docs []Document, specs []AggSpec) map[string][]Bucket {
	if len(specs) == 0 {
		return nil
	}
	out := make(map[string][]Bucket, len(specs))
	for _, spec := range specs {
		counts := make(map[string]int)
		for _, doc := range docs {
			for _, value := range fieldValues(doc, spec.Field) {
				counts[value]++
			}
		}
		buckets := make([]Bucket, 0, len(counts))
		for value, count := range counts {
			if count < spec.MinDocCount {
				continue
			}
			buckets = append(buckets, Bucket{ID: value, Title: value, Count: count})
		}
		sort.Slice(buckets, func(i, j int) bool {
			if buckets[i].Count != buckets[j].Count {
				return buckets[i].Count > buckets[j].Count
			}
			return buckets[i].ID < buckets[j].ID
		})
		if spec.Size > 0 && len(buckets) > spec.Size {
			buckets = buckets[:spec.Size]
		}
		out[spec.Name] = buckets
	}
	return out
}
