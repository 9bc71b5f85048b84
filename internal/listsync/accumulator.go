package listsync

// AccumulatedList is a read-only view of the merged pages.
type AccumulatedList[T Item] struct {
	Items            []T
	Total            int
	CurrentPageIndex int
	HasNextPage      bool
}

// Accumulator owns the growing result list. Items are unique by ID and keep
// the order in which they were first seen.
type Accumulator[T Item] struct {
	items       []T
	indexByID   map[string]int
	total       int
	currentPage int
	hasNext     bool
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator[T Item]() *Accumulator[T] {
	return &Accumulator[T]{indexByID: make(map[string]int)}
}

// Apply merges one page. A reset replaces the list with the page contents;
// otherwise new items are appended and items whose ID is already present are
// dropped without moving the existing entry. Total and next-page state always
// come from the latest result. Apply returns the number of items added.
func (a *Accumulator[T]) Apply(result PageResult[T], pageIndex int, isReset bool) int {
	if isReset {
		a.items = make([]T, 0, len(result.Items))
		a.indexByID = make(map[string]int, len(result.Items))
		a.currentPage = 0
	} else {
		a.currentPage = pageIndex
	}

	added := 0
	for _, item := range result.Items {
		id := item.GetID()
		if a.Contains(id) {
			continue
		}
		a.indexByID[id] = len(a.items)
		a.items = append(a.items, item)
		added++
	}

	a.total = result.Total
	a.hasNext = result.HasMore
	return added
}

// Clear empties the list.
func (a *Accumulator[T]) Clear() {
	a.items = nil
	a.indexByID = make(map[string]int)
	a.total = 0
	a.currentPage = 0
	a.hasNext = false
}

// Len returns the number of unique items.
func (a *Accumulator[T]) Len() int { return len(a.items) }

// Total returns the server-reported total for the current query.
func (a *Accumulator[T]) Total() int { return a.total }

// CurrentPage returns the index of the last applied page.
func (a *Accumulator[T]) CurrentPage() int { return a.currentPage }

// HasNextPage reports the server's hasMore flag from the latest page.
func (a *Accumulator[T]) HasNextPage() bool { return a.hasNext }

// Contains reports whether an item with id is present.
func (a *Accumulator[T]) Contains(id string) bool {
	_, ok := a.indexByID[id]
	return ok
}

// Items returns a copy of the items in order.
func (a *Accumulator[T]) Items() []T {
	out := make([]T, len(a.items))
	copy(out, a.items)
	return out
}

// Snapshot returns a copy of the list state.
func (a *Accumulator[T]) Snapshot() AccumulatedList[T] {
	return AccumulatedList[T]{
		Items:            a.Items(),
		Total:            a.total,
		CurrentPageIndex: a.currentPage,
		HasNextPage:      a.hasNext,
	}
}
