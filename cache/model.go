package cache

import "time"

// Status is the fetch state of a query entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusFetchingNext
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusFetchingNext:
		return "fetching_next"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// IsFetching reports whether a request is outstanding.
func (s Status) IsFetching() bool {
	return s == StatusLoading || s == StatusFetchingNext
}

// Page is one fetched batch of items plus the param that produced it.
// Pages are never mutated after they are stored.
type Page struct {
	Param any
	Items []any
}

// Len returns the number of items in the page.
func (p Page) Len() int { return len(p.Items) }

// Entry is a read-only snapshot of a cached query.
type Entry struct {
	Key           QueryKey
	Status        Status
	Pages         []Page
	Err           error
	LastFetchedAt time.Time
	// Stale is set by invalidation or age; the next EnsureFetched refetches page 1.
	Stale bool
	// HasMore is false once a terminal page was returned.
	HasMore   bool
	NextParam any
}

// Items flattens all pages in order.
func (e Entry) Items() []any {
	out := make([]any, 0, e.ItemCount())
	for _, p := range e.Pages {
		out = append(out, p.Items...)
	}
	return out
}

// ItemCount returns the number of items across all pages.
func (e Entry) ItemCount() int {
	n := 0
	for _, p := range e.Pages {
		n += len(p.Items)
	}
	return n
}

// ItemsOf flattens e's pages into a typed slice, skipping items of another type.
func ItemsOf[T any](e Entry) []T {
	out := make([]T, 0, e.ItemCount())
	for _, p := range e.Pages {
		for _, item := range p.Items {
			if v, ok := item.(T); ok {
				out = append(out, v)
			}
		}
	}
	return out
}
