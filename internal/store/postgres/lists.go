package postgres

import (
	"context"
	"errors"
	"fmt"

	"MovieTrackr/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ListsStore struct {
	pool *pgxpool.Pool
}

func NewListsStore(pool *pgxpool.Pool) *ListsStore {
	return &ListsStore{pool: pool}
}

const entryColumns = `e.movie_id, e.title, e.poster_ref, e.external_rating, e.user_rating, e.notes, e.added_at, e.watched_date, e.moved_from`

func scanEntry(row pgx.Row, extra ...any) (domain.ListEntry, error) {
	var (
		e         domain.ListEntry
		poster    pgtype.Text
		extRating pgtype.Text
		rating    pgtype.Int4
		notes     pgtype.Text
		watched   pgtype.Timestamptz
		movedFrom pgtype.Text
	)
	dest := append([]any{}, extra...)
	dest = append(dest, &e.MovieID, &e.Title, &poster, &extRating, &rating, &notes, &e.AddedAt, &watched, &movedFrom)
	if err := row.Scan(dest...); err != nil {
		return domain.ListEntry{}, err
	}
	e.PosterRef = textOrEmpty(poster)
	e.ExternalRating = textOrEmpty(extRating)
	e.UserRating = int4Ptr(rating)
	e.Notes = textOrEmpty(notes)
	e.WatchedDate = timestamptzPtr(watched)
	e.MovedFrom = domain.ListKind(textOrEmpty(movedFrom))
	return e, nil
}

// EnsureLists creates whichever of the default lists the user is missing.
func (s *ListsStore) EnsureLists(ctx context.Context, userID string) error {
	const q = `
		INSERT INTO lists (user_id, kind)
		SELECT $1, k FROM unnest($2::text[]) AS k
		ON CONFLICT ON CONSTRAINT lists_user_kind_uq DO NOTHING
	`

	kinds := make([]string, 0, len(domain.ListKinds))
	for _, k := range domain.ListKinds {
		kinds = append(kinds, string(k))
	}
	if _, err := s.pool.Exec(ctx, q, userID, kinds); err != nil {
		return fmt.Errorf("ensure lists: %w", err)
	}
	return nil
}

func (s *ListsStore) CreateList(ctx context.Context, userID string, kind domain.ListKind) (domain.List, error) {
	const q = `
		INSERT INTO lists (user_id, kind)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`

	l := domain.List{UserID: userID, Kind: kind, Entries: []domain.ListEntry{}}
	var idUUID pgtype.UUID
	err := s.pool.QueryRow(ctx, q, userID, string(kind)).Scan(&idUUID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "lists_user_kind_uq" {
			return domain.List{}, domain.ErrConflict
		}
		return domain.List{}, fmt.Errorf("create list: %w", err)
	}
	l.ID = uuidOrEmpty(idUUID)
	return l, nil
}

func (s *ListsStore) GetLists(ctx context.Context, userID string) ([]domain.List, error) {
	const q = `
		SELECT id, kind, created_at, updated_at
		FROM lists
		WHERE user_id = $1
		ORDER BY CASE kind WHEN 'watchlist' THEN 0 WHEN 'watched' THEN 1 ELSE 2 END
	`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("get lists: %w", err)
	}
	defer rows.Close()

	out := []domain.List{}
	byID := map[string]int{}
	for rows.Next() {
		var (
			l      domain.List
			idUUID pgtype.UUID
			kind   string
		)
		if err := rows.Scan(&idUUID, &kind, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		l.ID = uuidOrEmpty(idUUID)
		l.UserID = userID
		l.Kind = domain.ListKind(kind)
		l.Entries = []domain.ListEntry{}
		byID[l.ID] = len(out)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get lists: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	const entriesQ = `
		SELECT e.list_id, ` + entryColumns + `
		FROM list_entries e
		JOIN lists l ON l.id = e.list_id
		WHERE l.user_id = $1
		ORDER BY e.seq ASC
	`
	entryRows, err := s.pool.Query(ctx, entriesQ, userID)
	if err != nil {
		return nil, fmt.Errorf("get list entries: %w", err)
	}
	defer entryRows.Close()

	for entryRows.Next() {
		var listUUID pgtype.UUID
		e, err := scanEntry(entryRows, &listUUID)
		if err != nil {
			return nil, fmt.Errorf("scan list entry: %w", err)
		}
		if i, ok := byID[uuidOrEmpty(listUUID)]; ok {
			out[i].Entries = append(out[i].Entries, e)
		}
	}
	if err := entryRows.Err(); err != nil {
		return nil, fmt.Errorf("get list entries: %w", err)
	}
	return out, nil
}

func (s *ListsStore) GetList(ctx context.Context, userID string, kind domain.ListKind) (domain.List, error) {
	const q = `
		SELECT id, created_at, updated_at
		FROM lists
		WHERE user_id = $1 AND kind = $2
	`

	l := domain.List{UserID: userID, Kind: kind, Entries: []domain.ListEntry{}}
	var idUUID pgtype.UUID
	err := s.pool.QueryRow(ctx, q, userID, string(kind)).Scan(&idUUID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.List{}, domain.ErrNotFound
		}
		return domain.List{}, fmt.Errorf("get list: %w", err)
	}
	l.ID = uuidOrEmpty(idUUID)

	const entriesQ = `
		SELECT ` + entryColumns + `
		FROM list_entries e
		WHERE e.list_id = $1
		ORDER BY e.seq ASC
	`
	rows, err := s.pool.Query(ctx, entriesQ, l.ID)
	if err != nil {
		return domain.List{}, fmt.Errorf("get list entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return domain.List{}, fmt.Errorf("scan list entry: %w", err)
		}
		l.Entries = append(l.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return domain.List{}, fmt.Errorf("get list entries: %w", err)
	}
	return l, nil
}

// InsertEntry appends an entry to the user's list of the given kind. The
// (list, movie) unique constraint is the final guard against duplicates.
func (s *ListsStore) InsertEntry(ctx context.Context, userID string, kind domain.ListKind, entry domain.ListEntry) (domain.ListEntry, error) {
	const q = `
		WITH l AS (
			UPDATE lists SET updated_at = now()
			WHERE user_id = $1 AND kind = $2
			RETURNING id
		)
		INSERT INTO list_entries AS e (list_id, movie_id, title, poster_ref, external_rating, user_rating, notes, added_at, watched_date, moved_from)
		SELECT l.id, $3, $4, $5, $6, $7, $8, $9, $10, $11 FROM l
		RETURNING ` + entryColumns

	out, err := scanEntry(s.pool.QueryRow(ctx, q,
		userID,
		string(kind),
		entry.MovieID,
		entry.Title,
		nullIfEmpty(entry.PosterRef),
		nullIfEmpty(entry.ExternalRating),
		entry.UserRating,
		nullIfEmpty(entry.Notes),
		entry.AddedAt,
		entry.WatchedDate,
		nullIfEmpty(string(entry.MovedFrom)),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ListEntry{}, domain.ErrNotFound
		}
		if constraint, ok := uniqueViolation(err); ok && constraint == "list_entries_list_movie_uq" {
			return domain.ListEntry{}, domain.ErrDuplicateEntry
		}
		return domain.ListEntry{}, fmt.Errorf("insert list entry: %w", err)
	}
	return out, nil
}

// DeleteEntry removes movieID from the list and reports whether a row went away.
func (s *ListsStore) DeleteEntry(ctx context.Context, userID string, kind domain.ListKind, movieID string) (bool, error) {
	const q = `
		DELETE FROM list_entries e
		USING lists l
		WHERE e.list_id = l.id AND l.user_id = $1 AND l.kind = $2 AND e.movie_id = $3
	`

	ct, err := s.pool.Exec(ctx, q, userID, string(kind), movieID)
	if err != nil {
		return false, fmt.Errorf("delete list entry: %w", err)
	}
	if ct.RowsAffected() > 0 {
		const touch = `UPDATE lists SET updated_at = now() WHERE user_id = $1 AND kind = $2`
		if _, err := s.pool.Exec(ctx, touch, userID, string(kind)); err != nil {
			return true, fmt.Errorf("touch list: %w", err)
		}
	}
	return ct.RowsAffected() > 0, nil
}

func (s *ListsStore) UpdateEntry(ctx context.Context, userID string, kind domain.ListKind, movieID string, patch domain.EntryPatch) (domain.ListEntry, error) {
	const q = `
		UPDATE list_entries AS e SET
			user_rating  = CASE WHEN $4::boolean THEN $5::integer ELSE e.user_rating END,
			notes        = CASE WHEN $6::boolean THEN $7::text ELSE e.notes END,
			watched_date = CASE WHEN $8::boolean THEN $9::timestamptz ELSE e.watched_date END
		FROM lists l
		WHERE e.list_id = l.id AND l.user_id = $1 AND l.kind = $2 AND e.movie_id = $3
		RETURNING ` + entryColumns

	var notes any
	if patch.Notes != nil {
		notes = nullIfEmpty(*patch.Notes)
	}
	out, err := scanEntry(s.pool.QueryRow(ctx, q,
		userID,
		string(kind),
		movieID,
		patch.UserRating != nil, patch.UserRating,
		patch.Notes != nil, notes,
		patch.WatchedDate != nil, patch.WatchedDate,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ListEntry{}, domain.ErrNotFound
		}
		return domain.ListEntry{}, fmt.Errorf("update list entry: %w", err)
	}
	return out, nil
}
