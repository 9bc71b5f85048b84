package models

// Page is the list envelope used by every collection endpoint.
// Count is the total number of matches for the query, not the page length.
type Page[T any] struct {
	Count   int  `json:"count"`
	HasMore bool `json:"has_more"`
	Results []T  `json:"results"`
}
