package api

import (
	"context"
	"net/url"
	"strconv"

	"github.com/voltline/evdash/internal/listsync"
	"github.com/voltline/evdash/internal/models"
)

// Resource is one collection endpoint exposed as a listsync.DataSource.
type Resource[T listsync.Item] struct {
	client *Client
	schema Schema
}

// NewResource binds schema to client.
func NewResource[T listsync.Item](client *Client, schema Schema) *Resource[T] {
	return &Resource[T]{client: client, schema: schema}
}

// Stations returns the stations data source.
func Stations(c *Client) *Resource[models.Station] {
	return NewResource[models.Station](c, StationSchema)
}

// Wallets returns the wallets data source.
func Wallets(c *Client) *Resource[models.Wallet] {
	return NewResource[models.Wallet](c, WalletSchema)
}

// Transactions returns the transactions data source.
func Transactions(c *Client) *Resource[models.Transaction] {
	return NewResource[models.Transaction](c, TransactionSchema)
}

// Name returns the resource name ("stations", ...).
func (r *Resource[T]) Name() string {
	return r.schema.Resource
}

// Schema returns the resource query schema.
func (r *Resource[T]) Schema() Schema {
	return r.schema
}

// Validate checks params against the resource schema.
func (r *Resource[T]) Validate(p listsync.QueryParameters) error {
	return r.schema.Validate(p)
}

// FetchPage implements listsync.DataSource.
func (r *Resource[T]) FetchPage(ctx context.Context, params listsync.QueryParameters, pageIndex, pageSize int) (listsync.PageResult[T], error) {
	var page models.Page[T]
	if err := r.client.getJSON(ctx, r.schema.Path, EncodeQuery(params, pageIndex, pageSize), &page); err != nil {
		return listsync.PageResult[T]{}, err
	}
	return listsync.PageResult[T]{
		Items:   page.Results,
		Total:   page.Count,
		HasMore: page.HasMore,
	}, nil
}

// EncodeQuery renders params as the list query string.
func EncodeQuery(params listsync.QueryParameters, pageIndex, pageSize int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(pageIndex))
	q.Set("page_size", strconv.Itoa(pageSize))
	if params.Search != "" {
		q.Set("search", params.Search)
	}
	if params.Sort.Field != "" {
		q.Set("sort", params.Sort.Field)
		order := "asc"
		if params.Sort.Descending {
			order = "desc"
		}
		q.Set("order", order)
	}
	for _, k := range params.FilterKeys() {
		q.Set(k, params.Filters[k])
	}
	return q
}

// DecodeQuery parses a list query string. It is the inverse of EncodeQuery
// for the keys a schema knows about; unknown keys become filters.
func DecodeQuery(q url.Values) (params listsync.QueryParameters, pageIndex int, err error) {
	pageIndex, err = atoiDefault(q.Get("page"), 0)
	if err != nil || pageIndex < 0 {
		return params, 0, &listsync.ParameterError{Field: "page", Reason: "must be a non-negative integer"}
	}
	pageSize, err := atoiDefault(q.Get("page_size"), 0)
	if err != nil {
		return params, 0, &listsync.ParameterError{Field: "page_size", Reason: "must be an integer"}
	}

	params = listsync.NewQueryParameters(pageSize).WithSearch(q.Get("search"))
	if field := q.Get("sort"); field != "" {
		params = params.WithSort(listsync.SortOrder{Field: field, Descending: q.Get("order") == "desc"})
	}
	for key, values := range q {
		switch key {
		case "page", "page_size", "search", "sort", "order":
			continue
		}
		if len(values) > 0 {
			params = params.WithFilter(key, values[0])
		}
	}
	return params, pageIndex, nil
}

func atoiDefault(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
