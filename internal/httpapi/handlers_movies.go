package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"MovieTrackr/internal/domain"
)

// handleMoviesGet proxies a metadata lookup so clients can preview a movie
// before adding it to a list.
func (a *api) handleMoviesGet(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"id": "required"}))
		return
	}

	movie, err := a.movies.Lookup(r.Context(), id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			a.logger.Warn("movie lookup failed", "movie_id", id, "err", err)
			err = fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		}
		WriteDomainError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	WriteJSON(w, http.StatusOK, movie)
}

// OMDb serves at most 100 pages for a query.
const (
	maxMovieSearchPage  = 100
	maxMovieSearchQuery = 100
)

func (a *api) handleMoviesSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	page := queryInt(q.Get("page"), 1)

	fields := map[string]string{}
	switch {
	case query == "":
		fields["q"] = "required"
	case utf8.RuneCountInString(query) > maxMovieSearchQuery:
		fields["q"] = "must be 100 characters or less"
	}
	if page < 1 || page > maxMovieSearchPage {
		fields["page"] = "must be between 1 and 100"
	}
	if len(fields) > 0 {
		WriteDomainError(w, domain.NewValidationError(fields))
		return
	}

	res, err := a.movieSearch.Search(r.Context(), query, page)
	if err != nil {
		a.logger.Warn("movie search failed", "query", query, "page", page, "err", err)
		WriteDomainError(w, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err))
		return
	}
	WriteJSON(w, http.StatusOK, res)
}
