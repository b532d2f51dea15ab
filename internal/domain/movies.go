package domain

import "time"

// Movie is the metadata returned by the movie lookup service.
type Movie struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	PosterRef   string     `json:"poster_ref,omitempty"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	Rating      string     `json:"rating,omitempty"`
}

// MovieSearchHit is one row of a title search. Year is kept as text because
// series report ranges like "2008-2013".
type MovieSearchHit struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	PosterRef string `json:"poster_ref,omitempty"`
	Year      string `json:"year,omitempty"`
}

type MovieSearchPage struct {
	Results      []MovieSearchHit `json:"results"`
	Page         int              `json:"page"`
	TotalPages   int              `json:"total_pages"`
	TotalResults int              `json:"total_results"`
}
