package domain

import "time"

type ListKind string

const (
	ListWatchlist ListKind = "watchlist"
	ListWatched   ListKind = "watched"
	ListFavorites ListKind = "favorites"
)

// ListKinds is the fixed set of lists every user owns, in display order.
var ListKinds = []ListKind{ListWatchlist, ListWatched, ListFavorites}

func (k ListKind) Valid() bool {
	switch k {
	case ListWatchlist, ListWatched, ListFavorites:
		return true
	}
	return false
}

type List struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Kind      ListKind    `json:"kind"`
	Entries   []ListEntry `json:"entries"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Contains reports whether movieID is already on the list.
func (l List) Contains(movieID string) bool {
	_, ok := l.Entry(movieID)
	return ok
}

func (l List) Entry(movieID string) (ListEntry, bool) {
	for _, e := range l.Entries {
		if e.MovieID == movieID {
			return e, true
		}
	}
	return ListEntry{}, false
}

type ListEntry struct {
	MovieID        string     `json:"movie_id"`
	Title          string     `json:"title"`
	PosterRef      string     `json:"poster_ref,omitempty"`
	ExternalRating string     `json:"external_rating,omitempty"`
	UserRating     *int       `json:"user_rating,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	AddedAt        time.Time  `json:"added_at"`
	WatchedDate    *time.Time `json:"watched_date,omitempty"`
	// MovedFrom is the list kind a move took this entry from. A retried move
	// uses it to tell its own earlier write apart from a real duplicate.
	MovedFrom ListKind `json:"moved_from,omitempty"`
}

// EntryPatch carries the optional fields of an entry update; nil means
// "leave unchanged".
type EntryPatch struct {
	UserRating  *int
	Notes       *string
	WatchedDate *time.Time
}

func (p EntryPatch) Empty() bool {
	return p.UserRating == nil && p.Notes == nil && p.WatchedDate == nil
}

const (
	MinUserRating = 0
	MaxUserRating = 10
)
