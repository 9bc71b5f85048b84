package api

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/voltline/evdash/internal/listsync"
	"github.com/voltline/evdash/internal/models"
)

// RangeKind says how the bounds of a range filter are parsed.
type RangeKind int

const (
	RangeNumber RangeKind = iota
	RangeTime
)

// Range is a pair of filters bounding one field. Either bound may be
// absent; both bounds are inclusive.
type Range struct {
	Field string
	Min   string
	Max   string
	Kind  RangeKind
}

// Schema describes the query surface of one collection endpoint.
type Schema struct {
	Resource string
	Path     string
	// Enums maps filter keys to their allowed values.
	Enums map[string][]string
	// Free lists filter keys accepting any non-empty value (IDs).
	Free     []string
	Ranges   []Range
	Sortable []string
	// Searchable lists the fields the server matches search text against.
	Searchable []string
}

// StationSchema describes /api/v1/stations/
var StationSchema = Schema{
	Resource: "stations",
	Path:     "/api/v1/stations/",
	Enums: map[string][]string{
		"status":         models.StationStatuses,
		"connector_type": models.ConnectorTypes,
	},
	Free:       []string{"city"},
	Ranges:     []Range{{Field: "power_kw", Min: "min_power", Max: "max_power", Kind: RangeNumber}},
	Sortable:   []string{"name", "city", "status", "power_kw", "updated_at"},
	Searchable: []string{"id", "name", "city"},
}

// WalletSchema describes /api/v1/wallets/
var WalletSchema = Schema{
	Resource: "wallets",
	Path:     "/api/v1/wallets/",
	Enums: map[string][]string{
		"status":   models.WalletStatuses,
		"currency": models.Currencies,
	},
	Ranges:     []Range{{Field: "balance", Min: "min_balance", Max: "max_balance", Kind: RangeNumber}},
	Sortable:   []string{"owner", "balance", "currency", "status"},
	Searchable: []string{"id", "owner"},
}

// TransactionSchema describes /api/v1/transactions/
var TransactionSchema = Schema{
	Resource: "transactions",
	Path:     "/api/v1/transactions/",
	Enums: map[string][]string{
		"status": models.TransactionStatuses,
		"type":   models.TransactionTypes,
	},
	Free: []string{"wallet_id", "station_id"},
	Ranges: []Range{
		{Field: "created_at", Min: "from", Max: "to", Kind: RangeTime},
		{Field: "amount", Min: "min_amount", Max: "max_amount", Kind: RangeNumber},
	},
	Sortable:   []string{"created_at", "amount", "energy_kwh", "status"},
	Searchable: []string{"id", "wallet_id", "station_id"},
}

// Schemas lists every known resource schema.
func Schemas() []Schema {
	return []Schema{StationSchema, WalletSchema, TransactionSchema}
}

// SchemaFor returns the schema for a resource name.
func SchemaFor(resource string) (Schema, bool) {
	for _, s := range Schemas() {
		if s.Resource == resource {
			return s, true
		}
	}
	return Schema{}, false
}

// FilterKeys returns every accepted filter key in sorted order.
func (s Schema) FilterKeys() []string {
	keys := make([]string, 0, len(s.Enums)+len(s.Free)+2*len(s.Ranges))
	for k := range s.Enums {
		keys = append(keys, k)
	}
	keys = append(keys, s.Free...)
	for _, r := range s.Ranges {
		keys = append(keys, r.Min, r.Max)
	}
	slices.Sort(keys)
	return keys
}

// Validate checks params against the schema. It returns a
// *listsync.ParameterError for the first problem found.
func (s Schema) Validate(p listsync.QueryParameters) error {
	if p.Sort.Field != "" && !slices.Contains(s.Sortable, p.Sort.Field) {
		return &listsync.ParameterError{
			Field:  "sort",
			Reason: fmt.Sprintf("cannot sort %s by %q (allowed: %s)", s.Resource, p.Sort.Field, strings.Join(s.Sortable, ", ")),
		}
	}

	for _, key := range p.FilterKeys() {
		value := p.Filters[key]
		if allowed, ok := s.Enums[key]; ok {
			if !slices.Contains(allowed, value) {
				return &listsync.ParameterError{
					Field:  key,
					Reason: fmt.Sprintf("%q is not one of %s", value, strings.Join(allowed, ", ")),
				}
			}
			continue
		}
		if slices.Contains(s.Free, key) || s.RangeFor(key) != nil {
			continue
		}
		return &listsync.ParameterError{
			Field:  key,
			Reason: fmt.Sprintf("unknown filter for %s", s.Resource),
		}
	}

	for _, r := range s.Ranges {
		if err := r.validate(p); err != nil {
			return err
		}
	}
	return nil
}

// RangeFor returns the range that key bounds, or nil.
func (s Schema) RangeFor(key string) *Range {
	for i := range s.Ranges {
		if s.Ranges[i].Min == key || s.Ranges[i].Max == key {
			return &s.Ranges[i]
		}
	}
	return nil
}

func (r Range) validate(p listsync.QueryParameters) error {
	lo, hasLo := p.Filter(r.Min)
	hi, hasHi := p.Filter(r.Max)

	var loV, hiV float64
	if hasLo {
		v, err := r.parse(lo)
		if err != nil {
			return &listsync.ParameterError{Field: r.Min, Reason: err.Error()}
		}
		loV = v
	}
	if hasHi {
		v, err := r.parse(hi)
		if err != nil {
			return &listsync.ParameterError{Field: r.Max, Reason: err.Error()}
		}
		hiV = v
	}
	if hasLo && hasHi && loV > hiV {
		return &listsync.ParameterError{Field: r.Min, Reason: fmt.Sprintf("must not be after %s", r.Max)}
	}
	return nil
}

// parse returns a comparable value for one bound.
func (r Range) parse(v string) (float64, error) {
	if r.Kind == RangeTime {
		t, err := ParseTimeBound(v)
		if err != nil {
			return 0, err
		}
		return float64(t.Unix()), nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", v)
	}
	return f, nil
}

// ParseTimeBound accepts RFC 3339 timestamps and plain dates (UTC midnight).
func ParseTimeBound(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%q is not a date (YYYY-MM-DD) or RFC 3339 time", v)
}
