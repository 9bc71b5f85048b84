package mockapi

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/voltline/evdash/internal/api"
	"github.com/voltline/evdash/internal/listsync"
)

// accessor returns a string, float64 or time.Time for a field, or nil.
type accessor[T any] func(item T, field string) any

// query evaluates list parameters against an in-memory collection.
type query[T listsync.Item] struct {
	schema api.Schema
	field  accessor[T]
}

type ranked[T any] struct {
	item     T
	distance int
}

// run filters, searches and sorts items. It does not page.
func (q query[T]) run(items []T, params listsync.QueryParameters) []T {
	matches := make([]ranked[T], 0, len(items))
	for _, item := range items {
		if !q.matchFilters(item, params) {
			continue
		}
		distance := 0
		if params.Search != "" {
			distance = q.searchDistance(item, params.Search)
			if distance < 0 {
				continue
			}
		}
		matches = append(matches, ranked[T]{item: item, distance: distance})
	}

	slices.SortStableFunc(matches, func(a, b ranked[T]) int {
		if params.Sort.Field != "" {
			c := compareValues(q.field(a.item, params.Sort.Field), q.field(b.item, params.Sort.Field))
			if params.Sort.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		} else if params.Search != "" {
			if c := cmp.Compare(a.distance, b.distance); c != 0 {
				return c
			}
		}
		return strings.Compare(a.item.GetID(), b.item.GetID())
	})

	out := make([]T, len(matches))
	for i, m := range matches {
		out[i] = m.item
	}
	return out
}

// searchDistance returns the best fuzzy distance of text against the
// searchable fields, or -1 when no field matches.
func (q query[T]) searchDistance(item T, text string) int {
	best := -1
	for _, f := range q.schema.Searchable {
		s, _ := q.field(item, f).(string)
		if s == "" {
			continue
		}
		d := fuzzy.RankMatchFold(text, s)
		if d >= 0 && (best < 0 || d < best) {
			best = d
		}
	}
	return best
}

func (q query[T]) matchFilters(item T, params listsync.QueryParameters) bool {
	for _, key := range params.FilterKeys() {
		value := params.Filters[key]
		if r := q.schema.RangeFor(key); r != nil {
			if !inRange(q.field(item, r.Field), *r, key == r.Max, value) {
				return false
			}
			continue
		}
		got, _ := q.field(item, key).(string)
		if !strings.EqualFold(got, value) {
			return false
		}
	}
	return true
}

// inRange checks one inclusive bound. A date-only upper bound covers the whole day.
func inRange(v any, r api.Range, isMax bool, bound string) bool {
	var c int
	switch r.Kind {
	case api.RangeTime:
		t, ok := v.(time.Time)
		if !ok {
			return false
		}
		b, err := api.ParseTimeBound(bound)
		if err != nil {
			return false
		}
		if isMax && len(bound) == len(time.DateOnly) {
			b = b.Add(24*time.Hour - time.Nanosecond)
		}
		c = t.Compare(b)
	default:
		f, ok := v.(float64)
		if !ok {
			return false
		}
		b, err := strconv.ParseFloat(bound, 64)
		if err != nil {
			return false
		}
		c = cmp.Compare(f, b)
	}
	if isMax {
		return c <= 0
	}
	return c >= 0
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		return strings.Compare(strings.ToLower(av), strings.ToLower(bv))
	case float64:
		bv, _ := b.(float64)
		return cmp.Compare(av, bv)
	case time.Time:
		bv, _ := b.(time.Time)
		return av.Compare(bv)
	}
	return 0
}

// page returns the slice for pageIndex and whether more items follow.
func page[T any](items []T, pageIndex, pageSize int) ([]T, bool) {
	start := pageIndex * pageSize
	if start >= len(items) {
		return []T{}, false
	}
	end := min(start+pageSize, len(items))
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out, end < len(items)
}
