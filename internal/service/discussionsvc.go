package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"MovieTrackr/internal/domain"

	"github.com/google/uuid"
)

type DiscussionsStore interface {
	CreateDiscussion(ctx context.Context, authorID string, in domain.NewDiscussion, when time.Time) (string, error)
	GetDiscussion(ctx context.Context, id string) (domain.Discussion, error)
	RecordView(ctx context.Context, id string) (int64, error)
	ListDiscussions(ctx context.Context, f domain.DiscussionFilter) ([]domain.Discussion, int, error)
	UpdateDiscussion(ctx context.Context, id string, patch domain.DiscussionPatch, when time.Time) error
	DeleteDiscussion(ctx context.Context, id string) error
	ToggleDiscussionLike(ctx context.Context, id, userID string) (bool, error)
	AddComment(ctx context.Context, discussionID string, c domain.Comment) error
	UpdateComment(ctx context.Context, discussionID, commentID, body string, when time.Time) error
	DeleteComment(ctx context.Context, discussionID, commentID string) error
	ToggleCommentLike(ctx context.Context, discussionID, commentID, userID string) (bool, error)
}

type DiscussionService struct {
	Store  DiscussionsStore
	Movies MovieLookup
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

const (
	maxTitleLength   = 200
	maxBodyLength    = 10000
	maxCommentLength = 2000
	maxTags          = 10

	defaultDiscussionLimit = 10
	maxDiscussionLimit     = 50
)

func (s *DiscussionService) Create(ctx context.Context, authorID string, in domain.NewDiscussion) (domain.Discussion, error) {
	if s.Now == nil {
		s.Now = time.Now
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Body = strings.TrimSpace(in.Body)
	in.MovieID = strings.TrimSpace(in.MovieID)
	in.Tags = normalizeTags(in.Tags)
	if in.Category == "" {
		in.Category = domain.CategoryGeneral
	}

	fields := map[string]string{}
	validateDiscussionText(fields, &in.Title, &in.Body)
	if in.MovieID == "" {
		fields["movie_id"] = "required"
	}
	if !in.Category.Valid() {
		fields["category"] = "must be one of review, theory, recommendation, general"
	}
	if len(in.Tags) > maxTags {
		fields["tags"] = "at most 10 tags"
	}
	if len(fields) > 0 {
		return domain.Discussion{}, domain.NewValidationError(fields)
	}

	if (in.MovieTitle == "" || in.PosterRef == "") && s.Movies != nil {
		movie, err := s.Movies.Lookup(ctx, in.MovieID)
		if err == nil {
			if in.MovieTitle == "" {
				in.MovieTitle = movie.Title
			}
			if in.PosterRef == "" {
				in.PosterRef = movie.PosterRef
			}
		} else {
			s.logger().Warn("movie lookup failed", "movie_id", in.MovieID, "err", err)
		}
	}

	id, err := s.Store.CreateDiscussion(ctx, authorID, in, s.Now().UTC())
	if err != nil {
		return domain.Discussion{}, err
	}
	return s.Store.GetDiscussion(ctx, id)
}

// List returns one page of discussions, newest first.
func (s *DiscussionService) List(ctx context.Context, f domain.DiscussionFilter) (domain.DiscussionPage, error) {
	f.MovieID = strings.TrimSpace(f.MovieID)
	if f.Category != "" && !f.Category.Valid() {
		return domain.DiscussionPage{}, domain.NewValidationError(map[string]string{"category": "must be one of review, theory, recommendation, general"})
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultDiscussionLimit
	}
	if f.Limit > maxDiscussionLimit {
		f.Limit = maxDiscussionLimit
	}

	items, total, err := s.Store.ListDiscussions(ctx, f)
	if err != nil {
		return domain.DiscussionPage{}, err
	}
	return domain.DiscussionPage{
		Discussions: items,
		Page:        f.Page,
		TotalPages:  (total + f.Limit - 1) / f.Limit,
		Total:       total,
	}, nil
}

// Get returns the discussion and counts one view.
func (s *DiscussionService) Get(ctx context.Context, id string) (domain.Discussion, error) {
	if _, err := s.Store.RecordView(ctx, id); err != nil {
		return domain.Discussion{}, err
	}
	return s.Store.GetDiscussion(ctx, id)
}

func (s *DiscussionService) Update(ctx context.Context, userID, id string, patch domain.DiscussionPatch) (domain.Discussion, error) {
	if s.Now == nil {
		s.Now = time.Now
	}

	fields := map[string]string{}
	validateDiscussionText(fields, patch.Title, patch.Body)
	if patch.Category != nil && !patch.Category.Valid() {
		fields["category"] = "must be one of review, theory, recommendation, general"
	}
	if patch.Tags != nil {
		tags := normalizeTags(*patch.Tags)
		if len(tags) > maxTags {
			fields["tags"] = "at most 10 tags"
		}
		patch.Tags = &tags
	}
	if len(fields) > 0 {
		return domain.Discussion{}, domain.NewValidationError(fields)
	}

	d, err := s.Store.GetDiscussion(ctx, id)
	if err != nil {
		return domain.Discussion{}, err
	}
	if d.Author.ID != userID {
		return domain.Discussion{}, domain.ErrForbidden
	}
	if patch.Title == nil && patch.Body == nil && patch.Category == nil && patch.Tags == nil {
		return d, nil
	}

	if err := s.Store.UpdateDiscussion(ctx, id, patch, s.Now().UTC()); err != nil {
		return domain.Discussion{}, err
	}
	return s.Store.GetDiscussion(ctx, id)
}

func (s *DiscussionService) Delete(ctx context.Context, userID, id string) error {
	d, err := s.Store.GetDiscussion(ctx, id)
	if err != nil {
		return err
	}
	if d.Author.ID != userID {
		return domain.ErrForbidden
	}
	return s.Store.DeleteDiscussion(ctx, id)
}

// ToggleLike adds userID to the discussion's likes, or removes it if present.
func (s *DiscussionService) ToggleLike(ctx context.Context, userID, id string) (domain.Discussion, error) {
	if _, err := s.Store.ToggleDiscussionLike(ctx, id, userID); err != nil {
		return domain.Discussion{}, err
	}
	return s.Store.GetDiscussion(ctx, id)
}

func (s *DiscussionService) AddComment(ctx context.Context, userID, discussionID, body string) (domain.Discussion, error) {
	if s.Now == nil {
		s.Now = time.Now
	}
	if s.NewID == nil {
		s.NewID = uuid.NewString
	}
	body, err := validateCommentBody(body)
	if err != nil {
		return domain.Discussion{}, err
	}

	now := s.Now().UTC()
	c := domain.Comment{
		ID:        s.NewID(),
		Author:    domain.UserSummary{ID: userID},
		Body:      body,
		LikedBy:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.AddComment(ctx, discussionID, c); err != nil {
		return domain.Discussion{}, err
	}
	return s.Store.GetDiscussion(ctx, discussionID)
}

// EditComment rewrites a comment's body. Only its author may edit it.
func (s *DiscussionService) EditComment(ctx context.Context, userID, discussionID, commentID, body string) (domain.Discussion, error) {
	if s.Now == nil {
		s.Now = time.Now
	}
	body, err := validateCommentBody(body)
	if err != nil {
		return domain.Discussion{}, err
	}

	d, err := s.Store.GetDiscussion(ctx, discussionID)
	if err != nil {
		return domain.Discussion{}, err
	}
	c, ok := d.Comment(commentID)
	if !ok {
		return domain.Discussion{}, domain.ErrNotFound
	}
	if c.Author.ID != userID {
		return domain.Discussion{}, domain.ErrForbidden
	}

	if err := s.Store.UpdateComment(ctx, discussionID, commentID, body, s.Now().UTC()); err != nil {
		return domain.Discussion{}, err
	}
	return s.Store.GetDiscussion(ctx, discussionID)
}

// RemoveComment deletes a comment. The comment's author and the discussion's
// author may remove it.
func (s *DiscussionService) RemoveComment(ctx context.Context, userID, discussionID, commentID string) (domain.Discussion, error) {
	d, err := s.Store.GetDiscussion(ctx, discussionID)
	if err != nil {
		return domain.Discussion{}, err
	}
	c, ok := d.Comment(commentID)
	if !ok {
		return domain.Discussion{}, domain.ErrNotFound
	}
	if c.Author.ID != userID && d.Author.ID != userID {
		return domain.Discussion{}, domain.ErrForbidden
	}

	if err := s.Store.DeleteComment(ctx, discussionID, commentID); err != nil {
		return domain.Discussion{}, err
	}
	return s.Store.GetDiscussion(ctx, discussionID)
}

func (s *DiscussionService) ToggleCommentLike(ctx context.Context, userID, discussionID, commentID string) (domain.Discussion, error) {
	if _, err := s.Store.ToggleCommentLike(ctx, discussionID, commentID, userID); err != nil {
		return domain.Discussion{}, err
	}
	return s.Store.GetDiscussion(ctx, discussionID)
}

func (s *DiscussionService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// validateDiscussionText trims and checks title and body; nil pointers are
// skipped so the same check serves create and partial update.
func validateDiscussionText(fields map[string]string, title, body *string) {
	if title != nil {
		*title = strings.TrimSpace(*title)
		switch {
		case *title == "":
			fields["title"] = "required"
		case len(*title) > maxTitleLength:
			fields["title"] = "must be 200 characters or less"
		}
	}
	if body != nil {
		*body = strings.TrimSpace(*body)
		switch {
		case *body == "":
			fields["body"] = "required"
		case len(*body) > maxBodyLength:
			fields["body"] = "must be 10000 characters or less"
		}
	}
}

func validateCommentBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", domain.NewValidationError(map[string]string{"body": "required"})
	}
	if len(body) > maxCommentLength {
		return "", domain.NewValidationError(map[string]string{"body": "must be 2000 characters or less"})
	}
	return body, nil
}

// normalizeTags trims each tag and drops empty ones, keeping order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
