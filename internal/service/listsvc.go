package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"MovieTrackr/internal/domain"
)

type ListsStore interface {
	ListOnboarder
	CreateList(ctx context.Context, userID string, kind domain.ListKind) (domain.List, error)
	GetLists(ctx context.Context, userID string) ([]domain.List, error)
	GetList(ctx context.Context, userID string, kind domain.ListKind) (domain.List, error)
	InsertEntry(ctx context.Context, userID string, kind domain.ListKind, entry domain.ListEntry) (domain.ListEntry, error)
	DeleteEntry(ctx context.Context, userID string, kind domain.ListKind, movieID string) (bool, error)
	UpdateEntry(ctx context.Context, userID string, kind domain.ListKind, movieID string, patch domain.EntryPatch) (domain.ListEntry, error)
}

// MovieLookup resolves an external movie id to its metadata.
type MovieLookup interface {
	Lookup(ctx context.Context, movieID string) (domain.Movie, error)
}

// MovieSearcher finds movies by title, one upstream page at a time.
type MovieSearcher interface {
	Search(ctx context.Context, query string, page int) (domain.MovieSearchPage, error)
}

type FriendChecker interface {
	IsFriend(ctx context.Context, userID, friendID string) (bool, error)
}

type ListService struct {
	Store   ListsStore
	Friends FriendChecker
	Movies  MovieLookup
	Logger  *slog.Logger
	Now     func() time.Time
}

// MoveResult holds both lists after a move.
type MoveResult struct {
	Source domain.List `json:"source"`
	Target domain.List `json:"target"`
}

const maxNotesLength = 2000

func (s *ListService) GetLists(ctx context.Context, userID string) ([]domain.List, error) {
	return s.Store.GetLists(ctx, userID)
}

func (s *ListService) GetList(ctx context.Context, userID string, kind domain.ListKind) (domain.List, error) {
	if err := validateKind("kind", kind); err != nil {
		return domain.List{}, err
	}
	return s.Store.GetList(ctx, userID, kind)
}

// CreateList adds a list of the given kind. Each user owns at most one list
// per kind, so a second create fails with ErrConflict.
func (s *ListService) CreateList(ctx context.Context, userID string, kind domain.ListKind) (domain.List, error) {
	if err := validateKind("kind", kind); err != nil {
		return domain.List{}, err
	}
	return s.Store.CreateList(ctx, userID, kind)
}

// FriendLists returns another user's lists, visible only to their friends.
func (s *ListService) FriendLists(ctx context.Context, viewerID, ownerID string) ([]domain.List, error) {
	if viewerID == ownerID {
		return s.Store.GetLists(ctx, ownerID)
	}
	if s.Friends == nil {
		return nil, domain.ErrForbidden
	}
	ok, err := s.Friends.IsFriend(ctx, viewerID, ownerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrForbidden
	}
	return s.Store.GetLists(ctx, ownerID)
}

func (s *ListService) AddEntry(ctx context.Context, userID string, kind domain.ListKind, in domain.ListEntry) (domain.List, error) {
	if s.Now == nil {
		s.Now = time.Now
	}
	in.MovieID = strings.TrimSpace(in.MovieID)
	in.Title = strings.TrimSpace(in.Title)
	in.Notes = strings.TrimSpace(in.Notes)

	fields := map[string]string{}
	if !kind.Valid() {
		fields["kind"] = "must be one of watchlist, watched, favorites"
	}
	if in.MovieID == "" {
		fields["movie_id"] = "required"
	}
	validateRating(fields, in.UserRating)
	if len(in.Notes) > maxNotesLength {
		fields["notes"] = "must be 2000 characters or less"
	}
	if len(fields) > 0 {
		return domain.List{}, domain.NewValidationError(fields)
	}

	list, err := s.Store.GetList(ctx, userID, kind)
	if err != nil {
		return domain.List{}, err
	}
	if list.Contains(in.MovieID) {
		return domain.List{}, domain.ErrDuplicateEntry
	}

	if in.Title == "" || in.PosterRef == "" {
		if movie, err := s.lookup(ctx, in.MovieID); err == nil {
			fillEntry(&in, movie)
		}
	}

	now := s.Now().UTC()
	in.AddedAt = now
	in.MovedFrom = ""
	if kind == domain.ListWatched {
		if in.WatchedDate == nil {
			in.WatchedDate = &now
		}
	} else {
		in.WatchedDate = nil
	}

	if _, err := s.Store.InsertEntry(ctx, userID, kind, in); err != nil {
		return domain.List{}, err
	}
	return s.Store.GetList(ctx, userID, kind)
}

// RemoveEntry deletes movieID from the list. Removing an absent movie succeeds.
func (s *ListService) RemoveEntry(ctx context.Context, userID string, kind domain.ListKind, movieID string) (domain.List, error) {
	if err := validateKind("kind", kind); err != nil {
		return domain.List{}, err
	}
	if _, err := s.Store.DeleteEntry(ctx, userID, kind, strings.TrimSpace(movieID)); err != nil {
		return domain.List{}, err
	}
	return s.Store.GetList(ctx, userID, kind)
}

// UpdateEntry applies the non-nil fields of patch and leaves the rest alone.
func (s *ListService) UpdateEntry(ctx context.Context, userID string, kind domain.ListKind, movieID string, patch domain.EntryPatch) (domain.List, error) {
	fields := map[string]string{}
	if !kind.Valid() {
		fields["kind"] = "must be one of watchlist, watched, favorites"
	}
	validateRating(fields, patch.UserRating)
	if patch.Notes != nil {
		notes := strings.TrimSpace(*patch.Notes)
		if len(notes) > maxNotesLength {
			fields["notes"] = "must be 2000 characters or less"
		}
		patch.Notes = &notes
	}
	if len(fields) > 0 {
		return domain.List{}, domain.NewValidationError(fields)
	}
	movieID = strings.TrimSpace(movieID)

	if patch.Empty() {
		list, err := s.Store.GetList(ctx, userID, kind)
		if err != nil {
			return domain.List{}, err
		}
		if !list.Contains(movieID) {
			return domain.List{}, domain.ErrNotFound
		}
		return list, nil
	}

	if _, err := s.Store.UpdateEntry(ctx, userID, kind, movieID, patch); err != nil {
		return domain.List{}, err
	}
	return s.Store.GetList(ctx, userID, kind)
}

// MoveEntry moves movieID from one list to another without a transaction.
// The target row is written first and tagged with the source kind, then the
// source row is deleted. If the process dies between the two writes the
// movie sits in both lists with the tag set, and calling MoveEntry again
// finishes the job instead of reporting a duplicate. The copy keeps the
// source row's added date, which tells a half-finished move apart from a
// movie that was moved earlier and later added back to the source list.
// A movie is never absent from both lists.
func (s *ListService) MoveEntry(ctx context.Context, userID string, from, to domain.ListKind, movieID string) (MoveResult, error) {
	if s.Now == nil {
		s.Now = time.Now
	}
	movieID = strings.TrimSpace(movieID)

	fields := map[string]string{}
	if !from.Valid() {
		fields["from"] = "must be one of watchlist, watched, favorites"
	}
	if !to.Valid() {
		fields["to"] = "must be one of watchlist, watched, favorites"
	}
	if from == to && from.Valid() {
		fields["to"] = "must differ from source list"
	}
	if movieID == "" {
		fields["movie_id"] = "required"
	}
	if len(fields) > 0 {
		return MoveResult{}, domain.NewValidationError(fields)
	}

	source, err := s.Store.GetList(ctx, userID, from)
	if err != nil {
		return MoveResult{}, err
	}
	target, err := s.Store.GetList(ctx, userID, to)
	if err != nil {
		return MoveResult{}, err
	}

	entry, inSource := source.Entry(movieID)
	existing, inTarget := target.Entry(movieID)
	resumed := inTarget && existing.MovedFrom == from &&
		(!inSource || existing.AddedAt.Equal(entry.AddedAt))

	switch {
	case inSource && inTarget && !resumed:
		return MoveResult{}, domain.ErrDuplicateEntry
	case !inSource && !resumed:
		return MoveResult{}, domain.ErrNotFound
	case inSource && !inTarget:
		moved := entry
		moved.MovedFrom = from
		if to == domain.ListWatched && moved.WatchedDate == nil {
			now := s.Now().UTC()
			moved.WatchedDate = &now
		}
		if _, err := s.Store.InsertEntry(ctx, userID, to, moved); err != nil {
			return MoveResult{}, err
		}
	}

	if inSource {
		if _, err := s.Store.DeleteEntry(ctx, userID, from, movieID); err != nil {
			return MoveResult{}, err
		}
	}

	if source, err = s.Store.GetList(ctx, userID, from); err != nil {
		return MoveResult{}, err
	}
	if target, err = s.Store.GetList(ctx, userID, to); err != nil {
		return MoveResult{}, err
	}
	return MoveResult{Source: source, Target: target}, nil
}

func (s *ListService) lookup(ctx context.Context, movieID string) (domain.Movie, error) {
	if s.Movies == nil {
		return domain.Movie{}, domain.ErrUpstreamUnavailable
	}
	movie, err := s.Movies.Lookup(ctx, movieID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger().Warn("movie lookup failed", "movie_id", movieID, "err", err)
		}
		return domain.Movie{}, err
	}
	return movie, nil
}

func (s *ListService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// fillEntry copies metadata into fields the caller left empty.
func fillEntry(e *domain.ListEntry, m domain.Movie) {
	if e.Title == "" {
		e.Title = m.Title
	}
	if e.PosterRef == "" {
		e.PosterRef = m.PosterRef
	}
	if e.ExternalRating == "" {
		e.ExternalRating = m.Rating
	}
}

func validateKind(field string, kind domain.ListKind) error {
	if kind.Valid() {
		return nil
	}
	return domain.NewValidationError(map[string]string{field: "must be one of watchlist, watched, favorites"})
}

func validateRating(fields map[string]string, rating *int) {
	if rating != nil && (*rating < domain.MinUserRating || *rating > domain.MaxUserRating) {
		fields["user_rating"] = "must be between 0 and 10"
	}
}
