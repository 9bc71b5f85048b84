// Package listsync turns a paginated, filterable remote collection into an
// incrementally loaded list that is safe against out-of-order responses.
//
// A Controller owns one list. It debounces search input, issues page fetches
// through a Sequencer (one outstanding request, generation-tagged), merges
// pages into an Accumulator (de-duplicated by item ID), and pulls the next
// page when a visibility sensor reports the end of the list.
package listsync

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/voltline/evdash/internal/constants"
)

// SortOrder names the field to sort by and its direction.
type SortOrder struct {
	Field      string
	Descending bool
}

// String renders the sort as "field" or "-field".
func (s SortOrder) String() string {
	if s.Field == "" {
		return ""
	}
	if s.Descending {
		return "-" + s.Field
	}
	return s.Field
}

// ParseSortOrder parses the String form.
func ParseSortOrder(s string) SortOrder {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return SortOrder{Field: strings.TrimPrefix(s, "-"), Descending: true}
	}
	return SortOrder{Field: s}
}

// QueryParameters is an immutable snapshot of the inputs that define a list
// query. Two snapshots that are Equal describe the same query; any inequality
// means the list must reset to page 0.
//
// Use the With* methods to derive a changed copy. Filters must not be
// mutated after construction.
type QueryParameters struct {
	Search   string
	Sort     SortOrder
	Filters  map[string]string
	PageSize int
}

// NewQueryParameters returns an empty query with the given page size.
func NewQueryParameters(pageSize int) QueryParameters {
	return QueryParameters{PageSize: pageSize}
}

// WithSearch returns a copy with the search text replaced. Surrounding
// whitespace is not significant.
func (p QueryParameters) WithSearch(search string) QueryParameters {
	out := p.Clone()
	out.Search = strings.TrimSpace(search)
	return out
}

// WithFilter returns a copy with key set to value. An empty value removes the filter.
func (p QueryParameters) WithFilter(key, value string) QueryParameters {
	out := p.Clone()
	if value == "" {
		delete(out.Filters, key)
		if len(out.Filters) == 0 {
			out.Filters = nil
		}
		return out
	}
	if out.Filters == nil {
		out.Filters = make(map[string]string)
	}
	out.Filters[key] = value
	return out
}

// WithSort returns a copy with the sort order replaced.
func (p QueryParameters) WithSort(sort SortOrder) QueryParameters {
	out := p.Clone()
	out.Sort = sort
	return out
}

// WithPageSize returns a copy with the page size replaced.
func (p QueryParameters) WithPageSize(size int) QueryParameters {
	out := p.Clone()
	out.PageSize = size
	return out
}

// Filter returns a single filter value.
func (p QueryParameters) Filter(key string) (string, bool) {
	v, ok := p.Filters[key]
	return v, ok
}

// FilterKeys returns the filter keys in sorted order.
func (p QueryParameters) FilterKeys() []string {
	return slices.Sorted(maps.Keys(p.Filters))
}

// Clone returns a deep copy.
func (p QueryParameters) Clone() QueryParameters {
	out := p
	if p.Filters != nil {
		out.Filters = maps.Clone(p.Filters)
	}
	return out
}

// Equal reports value equality. A nil and an empty filter map are equal.
func (p QueryParameters) Equal(o QueryParameters) bool {
	return p.Search == o.Search &&
		p.Sort == o.Sort &&
		p.PageSize == o.PageSize &&
		maps.Equal(p.Filters, o.Filters)
}

// Validate checks the resource-independent rules.
func (p QueryParameters) Validate() error {
	if p.PageSize < 1 || p.PageSize > constants.MaxPageSize {
		return &ParameterError{
			Field:  "page_size",
			Reason: fmt.Sprintf("must be between 1 and %d, got %d", constants.MaxPageSize, p.PageSize),
		}
	}
	if len(p.Search) > constants.MaxSearchLength {
		return &ParameterError{
			Field:  "search",
			Reason: fmt.Sprintf("longer than %d characters", constants.MaxSearchLength),
		}
	}
	if strings.ContainsAny(p.Sort.Field, " \t\n,") {
		return &ParameterError{Field: "sort", Reason: "field name contains whitespace or commas"}
	}
	for key := range p.Filters {
		if strings.TrimSpace(key) == "" {
			return &ParameterError{Field: "filters", Reason: "empty filter key"}
		}
	}
	return nil
}

// String renders a stable description for logs.
func (p QueryParameters) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "search=%q sort=%q size=%d", p.Search, p.Sort.String(), p.PageSize)
	for _, k := range p.FilterKeys() {
		fmt.Fprintf(&b, " %s=%q", k, p.Filters[k])
	}
	return b.String()
}
