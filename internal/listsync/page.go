package listsync

import "context"

// Item is any entity with a stable unique ID.
type Item interface {
	GetID() string
}

// PageRequest is one page fetch. Generation is stamped by the Sequencer at
// issue time.
type PageRequest struct {
	Params     QueryParameters
	PageIndex  int
	Generation uint64
}

// PageResult is one page returned by a DataSource. HasMore is authoritative
// for whether another page exists.
type PageResult[T Item] struct {
	Items   []T
	Total   int
	HasMore bool
}

// DataSource fetches one page of a remote collection. Implementations must
// honor ctx cancellation; timeouts and transport retries are their concern.
type DataSource[T Item] interface {
	FetchPage(ctx context.Context, params QueryParameters, pageIndex, pageSize int) (PageResult[T], error)
}

// DataSourceFunc adapts a function to DataSource.
type DataSourceFunc[T Item] func(ctx context.Context, params QueryParameters, pageIndex, pageSize int) (PageResult[T], error)

func (f DataSourceFunc[T]) FetchPage(ctx context.Context, params QueryParameters, pageIndex, pageSize int) (PageResult[T], error) {
	return f(ctx, params, pageIndex, pageSize)
}
