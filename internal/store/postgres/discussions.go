package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MovieTrackr/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DiscussionsStore struct {
	pool *pgxpool.Pool
}

func NewDiscussionsStore(pool *pgxpool.Pool) *DiscussionsStore {
	return &DiscussionsStore{pool: pool}
}

const discussionSelect = `
	SELECT d.id, d.title, d.body, d.movie_id, d.movie_title, d.poster_ref, d.category, d.tags,
	       d.view_count, d.created_at, d.updated_at,
	       u.id, u.username, u.display_name,
	       ARRAY(SELECT dl.user_id::text FROM discussion_likes dl WHERE dl.discussion_id = d.id ORDER BY dl.created_at),
	       (SELECT count(*) FROM comments c WHERE c.discussion_id = d.id)
	FROM discussions d
	JOIN users u ON u.id = d.author_id
`

func scanDiscussion(row pgx.Row) (domain.Discussion, error) {
	var (
		d          domain.Discussion
		idUUID     pgtype.UUID
		movieTitle pgtype.Text
		poster     pgtype.Text
		category   string
		tags       pgtype.FlatArray[string]
		authorUUID pgtype.UUID
		likedBy    pgtype.FlatArray[string]
		comments   int64
	)
	err := row.Scan(
		&idUUID, &d.Title, &d.Body, &d.MovieID, &movieTitle, &poster, &category, &tags,
		&d.ViewCount, &d.CreatedAt, &d.UpdatedAt,
		&authorUUID, &d.Author.Username, &d.Author.DisplayName,
		&likedBy,
		&comments,
	)
	if err != nil {
		return domain.Discussion{}, err
	}
	d.ID = uuidOrEmpty(idUUID)
	d.MovieTitle = textOrEmpty(movieTitle)
	d.PosterRef = textOrEmpty(poster)
	d.Category = domain.DiscussionCategory(category)
	d.Tags = textArrayOrEmpty(tags)
	d.Author.ID = uuidOrEmpty(authorUUID)
	d.LikedBy = textArrayOrEmpty(likedBy)
	d.CommentCount = int(comments)
	d.Comments = []domain.Comment{}
	return d, nil
}

func (s *DiscussionsStore) CreateDiscussion(ctx context.Context, authorID string, in domain.NewDiscussion, when time.Time) (string, error) {
	const q = `
		INSERT INTO discussions (author_id, title, body, movie_id, movie_title, poster_ref, category, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id
	`

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	var idUUID pgtype.UUID
	err := s.pool.QueryRow(ctx, q,
		authorID,
		in.Title,
		in.Body,
		in.MovieID,
		nullIfEmpty(in.MovieTitle),
		nullIfEmpty(in.PosterRef),
		string(in.Category),
		tags,
		when,
	).Scan(&idUUID)
	if err != nil {
		return "", fmt.Errorf("create discussion: %w", err)
	}
	return uuidOrEmpty(idUUID), nil
}

// GetDiscussion loads a discussion with its comments in insertion order.
func (s *DiscussionsStore) GetDiscussion(ctx context.Context, id string) (domain.Discussion, error) {
	if !validUUID(id) {
		return domain.Discussion{}, domain.ErrNotFound
	}

	d, err := scanDiscussion(s.pool.QueryRow(ctx, discussionSelect+` WHERE d.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Discussion{}, domain.ErrNotFound
		}
		return domain.Discussion{}, fmt.Errorf("get discussion: %w", err)
	}

	const commentsQ = `
		SELECT c.id, c.body, c.created_at, c.updated_at,
		       u.id, u.username, u.display_name,
		       ARRAY(SELECT cl.user_id::text FROM comment_likes cl WHERE cl.comment_id = c.id ORDER BY cl.created_at)
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.discussion_id = $1
		ORDER BY c.seq ASC
	`
	rows, err := s.pool.Query(ctx, commentsQ, id)
	if err != nil {
		return domain.Discussion{}, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c          domain.Comment
			idUUID     pgtype.UUID
			authorUUID pgtype.UUID
			likedBy    pgtype.FlatArray[string]
		)
		if err := rows.Scan(&idUUID, &c.Body, &c.CreatedAt, &c.UpdatedAt, &authorUUID, &c.Author.Username, &c.Author.DisplayName, &likedBy); err != nil {
			return domain.Discussion{}, fmt.Errorf("scan comment: %w", err)
		}
		c.ID = uuidOrEmpty(idUUID)
		c.Author.ID = uuidOrEmpty(authorUUID)
		c.LikedBy = textArrayOrEmpty(likedBy)
		d.Comments = append(d.Comments, c)
	}
	if err := rows.Err(); err != nil {
		return domain.Discussion{}, fmt.Errorf("list comments: %w", err)
	}
	d.CommentCount = len(d.Comments)
	return d, nil
}

// RecordView increments the view counter in one statement and returns the
// new count.
func (s *DiscussionsStore) RecordView(ctx context.Context, id string) (int64, error) {
	if !validUUID(id) {
		return 0, domain.ErrNotFound
	}
	const q = `
		UPDATE discussions
		SET view_count = view_count + 1
		WHERE id = $1
		RETURNING view_count
	`

	var count int64
	if err := s.pool.QueryRow(ctx, q, id).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("record view: %w", err)
	}
	return count, nil
}

func (s *DiscussionsStore) ListDiscussions(ctx context.Context, f domain.DiscussionFilter) ([]domain.Discussion, int, error) {
	const countQ = `
		SELECT count(*)
		FROM discussions d
		WHERE ($1 = '' OR d.movie_id = $1) AND ($2 = '' OR d.category = $2)
	`

	var total int
	if err := s.pool.QueryRow(ctx, countQ, f.MovieID, string(f.Category)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count discussions: %w", err)
	}

	q := discussionSelect + `
		WHERE ($1 = '' OR d.movie_id = $1) AND ($2 = '' OR d.category = $2)
		ORDER BY d.created_at DESC, d.id
		LIMIT $3 OFFSET $4
	`
	rows, err := s.pool.Query(ctx, q, f.MovieID, string(f.Category), f.Limit, (f.Page-1)*f.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list discussions: %w", err)
	}
	defer rows.Close()

	out := []domain.Discussion{}
	for rows.Next() {
		d, err := scanDiscussion(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan discussion: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list discussions: %w", err)
	}
	return out, total, nil
}

func (s *DiscussionsStore) UpdateDiscussion(ctx context.Context, id string, patch domain.DiscussionPatch, when time.Time) error {
	if !validUUID(id) {
		return domain.ErrNotFound
	}
	const q = `
		UPDATE discussions SET
			title      = COALESCE($2, title),
			body       = COALESCE($3, body),
			category   = COALESCE($4, category),
			tags       = CASE WHEN $5::boolean THEN $6::text[] ELSE tags END,
			updated_at = $7
		WHERE id = $1
	`

	var category any
	if patch.Category != nil {
		category = string(*patch.Category)
	}
	var tags []string
	if patch.Tags != nil {
		tags = *patch.Tags
		if tags == nil {
			tags = []string{}
		}
	}
	ct, err := s.pool.Exec(ctx, q, id, patch.Title, patch.Body, category, patch.Tags != nil, tags, when)
	if err != nil {
		return fmt.Errorf("update discussion: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteDiscussion removes the discussion; comments and likes cascade.
func (s *DiscussionsStore) DeleteDiscussion(ctx context.Context, id string) error {
	if !validUUID(id) {
		return domain.ErrNotFound
	}
	ct, err := s.pool.Exec(ctx, `DELETE FROM discussions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete discussion: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ToggleDiscussionLike flips userID's like in a single statement and reports
// whether the user likes the discussion afterwards.
func (s *DiscussionsStore) ToggleDiscussionLike(ctx context.Context, id, userID string) (bool, error) {
	if !validUUID(id) {
		return false, domain.ErrNotFound
	}
	const q = `
		WITH target AS (
			SELECT id FROM discussions WHERE id = $1
		), del AS (
			DELETE FROM discussion_likes dl
			USING target
			WHERE dl.discussion_id = target.id AND dl.user_id = $2
			RETURNING 1
		), ins AS (
			INSERT INTO discussion_likes (discussion_id, user_id)
			SELECT target.id, $2 FROM target
			WHERE NOT EXISTS (SELECT 1 FROM del)
			ON CONFLICT DO NOTHING
			RETURNING 1
		)
		SELECT EXISTS (SELECT 1 FROM target), EXISTS (SELECT 1 FROM ins)
	`
	return toggle(s.pool.QueryRow(ctx, q, id, userID), "toggle discussion like")
}

func (s *DiscussionsStore) AddComment(ctx context.Context, discussionID string, c domain.Comment) error {
	if !validUUID(discussionID) {
		return domain.ErrNotFound
	}
	const q = `
		INSERT INTO comments (id, discussion_id, author_id, body, created_at, updated_at)
		SELECT $1, d.id, $3, $4, $5, $5 FROM discussions d WHERE d.id = $2
	`

	ct, err := s.pool.Exec(ctx, q, c.ID, discussionID, c.Author.ID, c.Body, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *DiscussionsStore) UpdateComment(ctx context.Context, discussionID, commentID, body string, when time.Time) error {
	if !validUUID(discussionID) || !validUUID(commentID) {
		return domain.ErrNotFound
	}
	const q = `
		UPDATE comments SET body = $3, updated_at = $4
		WHERE id = $2 AND discussion_id = $1
	`

	ct, err := s.pool.Exec(ctx, q, discussionID, commentID, body, when)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *DiscussionsStore) DeleteComment(ctx context.Context, discussionID, commentID string) error {
	if !validUUID(discussionID) || !validUUID(commentID) {
		return domain.ErrNotFound
	}
	const q = `DELETE FROM comments WHERE id = $2 AND discussion_id = $1`

	ct, err := s.pool.Exec(ctx, q, discussionID, commentID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *DiscussionsStore) ToggleCommentLike(ctx context.Context, discussionID, commentID, userID string) (bool, error) {
	if !validUUID(discussionID) || !validUUID(commentID) {
		return false, domain.ErrNotFound
	}
	const q = `
		WITH target AS (
			SELECT id FROM comments WHERE id = $2 AND discussion_id = $1
		), del AS (
			DELETE FROM comment_likes cl
			USING target
			WHERE cl.comment_id = target.id AND cl.user_id = $3
			RETURNING 1
		), ins AS (
			INSERT INTO comment_likes (comment_id, user_id)
			SELECT target.id, $3 FROM target
			WHERE NOT EXISTS (SELECT 1 FROM del)
			ON CONFLICT DO NOTHING
			RETURNING 1
		)
		SELECT EXISTS (SELECT 1 FROM target), EXISTS (SELECT 1 FROM ins)
	`
	return toggle(s.pool.QueryRow(ctx, q, discussionID, commentID, userID), "toggle comment like")
}

func toggle(row pgx.Row, op string) (bool, error) {
	var found, liked bool
	if err := row.Scan(&found, &liked); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return false, domain.ErrNotFound
	}
	return liked, nil
}
