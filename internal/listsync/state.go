package listsync

// SyncState is the lifecycle state of one list.
type SyncState int

const (
	StateIdle SyncState = iota
	StateLoadingInitial
	StateReady
	StateLoadingMore
	StateError
)

func (s SyncState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingInitial:
		return "loading_initial"
	case StateReady:
		return "ready"
	case StateLoadingMore:
		return "loading_more"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is the read-only state handed to views.
type Snapshot[T Item] struct {
	State            SyncState
	Items            []T
	Total            int
	HasNextPage      bool
	CurrentPageIndex int
	Err              error
	Params           QueryParameters
	Generation       uint64
	// Version increases with every change so a view can drop out-of-order snapshots.
	Version uint64
	Closed  bool
}

func (s Snapshot[T]) IsLoadingInitial() bool { return s.State == StateLoadingInitial }
func (s Snapshot[T]) IsLoadingMore() bool    { return s.State == StateLoadingMore }

// IsLoading reports whether any fetch is in flight.
func (s Snapshot[T]) IsLoading() bool {
	return s.State == StateLoadingInitial || s.State == StateLoadingMore
}
