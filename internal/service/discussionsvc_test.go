package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"MovieTrackr/internal/domain"
)

type memDiscussions struct {
	mu    sync.Mutex
	seq   int
	items map[string]*domain.Discussion
	views int
}

func newMemDiscussions() *memDiscussions {
	return &memDiscussions{items: map[string]*domain.Discussion{}}
}

func (m *memDiscussions) CreateDiscussion(_ context.Context, authorID string, in domain.NewDiscussion, when time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("disc-%d", m.seq)
	m.items[id] = &domain.Discussion{
		ID: id, Author: domain.UserSummary{ID: authorID}, Title: in.Title, Body: in.Body,
		MovieID: in.MovieID, MovieTitle: in.MovieTitle, PosterRef: in.PosterRef,
		Category: in.Category, Tags: in.Tags, LikedBy: []string{}, Comments: []domain.Comment{},
		CreatedAt: when.Add(time.Duration(m.seq) * time.Second), UpdatedAt: when,
	}
	return id, nil
}

func (m *memDiscussions) GetDiscussion(_ context.Context, id string) (domain.Discussion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return domain.Discussion{}, domain.ErrNotFound
	}
	out := *d
	out.LikedBy = append([]string{}, d.LikedBy...)
	out.Comments = make([]domain.Comment, len(d.Comments))
	for i, c := range d.Comments {
		c.LikedBy = append([]string{}, c.LikedBy...)
		out.Comments[i] = c
	}
	out.CommentCount = len(d.Comments)
	return out, nil
}

func (m *memDiscussions) RecordView(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	m.views++
	d.ViewCount++
	return d.ViewCount, nil
}

func (m *memDiscussions) ListDiscussions(_ context.Context, f domain.DiscussionFilter) ([]domain.Discussion, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := []domain.Discussion{}
	for _, d := range m.items {
		if (f.MovieID == "" || d.MovieID == f.MovieID) && (f.Category == "" || d.Category == f.Category) {
			all = append(all, *d)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	start := (f.Page - 1) * f.Limit
	if start > len(all) {
		start = len(all)
	}
	end := start + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (m *memDiscussions) UpdateDiscussion(_ context.Context, id string, patch domain.DiscussionPatch, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if patch.Title != nil {
		d.Title = *patch.Title
	}
	if patch.Body != nil {
		d.Body = *patch.Body
	}
	if patch.Category != nil {
		d.Category = *patch.Category
	}
	if patch.Tags != nil {
		d.Tags = *patch.Tags
	}
	d.UpdatedAt = when
	return nil
}

func (m *memDiscussions) DeleteDiscussion(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func toggleIn(set []string, userID string) ([]string, bool) {
	for i, id := range set {
		if id == userID {
			return append(set[:i], set[i+1:]...), false
		}
	}
	return append(set, userID), true
}

func (m *memDiscussions) ToggleDiscussionLike(_ context.Context, id, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	var liked bool
	d.LikedBy, liked = toggleIn(d.LikedBy, userID)
	return liked, nil
}

func (m *memDiscussions) AddComment(_ context.Context, discussionID string, c domain.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[discussionID]
	if !ok {
		return domain.ErrNotFound
	}
	d.Comments = append(d.Comments, c)
	return nil
}

func (m *memDiscussions) comment(discussionID, commentID string) (*domain.Discussion, int) {
	d, ok := m.items[discussionID]
	if !ok {
		return nil, -1
	}
	for i := range d.Comments {
		if d.Comments[i].ID == commentID {
			return d, i
		}
	}
	return d, -1
}

func (m *memDiscussions) UpdateComment(_ context.Context, discussionID, commentID, body string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, i := m.comment(discussionID, commentID)
	if i < 0 {
		return domain.ErrNotFound
	}
	d.Comments[i].Body = body
	d.Comments[i].UpdatedAt = when
	return nil
}

func (m *memDiscussions) DeleteComment(_ context.Context, discussionID, commentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, i := m.comment(discussionID, commentID)
	if i < 0 {
		return domain.ErrNotFound
	}
	d.Comments = append(d.Comments[:i], d.Comments[i+1:]...)
	return nil
}

func (m *memDiscussions) ToggleCommentLike(_ context.Context, discussionID, commentID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, i := m.comment(discussionID, commentID)
	if i < 0 {
		return false, domain.ErrNotFound
	}
	var liked bool
	d.Comments[i].LikedBy, liked = toggleIn(d.Comments[i].LikedBy, userID)
	return liked, nil
}

func newDiscussionService() (*DiscussionService, *memDiscussions) {
	store := newMemDiscussions()
	n := 0
	return &DiscussionService{
		Store: store,
		Now:   func() time.Time { return time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC) },
		NewID: func() string { n++; return fmt.Sprintf("c-%d", n) },
	}, store
}

func mustCreateDiscussion(t *testing.T, svc *DiscussionService, authorID string) domain.Discussion {
	t.Helper()
	d, err := svc.Create(context.Background(), authorID, domain.NewDiscussion{
		Title: "Ending explained", Body: "Was it a dream?", MovieID: "tt1375666", MovieTitle: "Inception", PosterRef: "p",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return d
}

func TestDiscussionServiceCreateDefaults(t *testing.T) {
	svc, _ := newDiscussionService()

	d, err := svc.Create(context.Background(), "u1", domain.NewDiscussion{
		Title: "  Ending  ", Body: "body", MovieID: "tt1", Tags: []string{" nolan ", "", "dreams"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.Category != domain.CategoryGeneral || d.Title != "Ending" {
		t.Fatalf("unexpected discussion: %+v", d)
	}
	if len(d.Tags) != 2 || d.Tags[0] != "nolan" || d.Tags[1] != "dreams" {
		t.Fatalf("unexpected tags: %v", d.Tags)
	}

	_, err = svc.Create(context.Background(), "u1", domain.NewDiscussion{Category: "rant"})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, f := range []string{"title", "body", "movie_id", "category"} {
		if verr.Fields[f] == "" {
			t.Fatalf("expected %s error, got %v", f, verr.Fields)
		}
	}
}

func TestDiscussionServiceToggleLikeParity(t *testing.T) {
	svc, _ := newDiscussionService()
	d := mustCreateDiscussion(t, svc, "author")
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		got, err := svc.ToggleLike(ctx, "fan", d.ID)
		if err != nil {
			t.Fatalf("ToggleLike #%d: %v", i, err)
		}
		liked := len(got.LikedBy) == 1 && got.LikedBy[0] == "fan"
		if liked != (i%2 == 1) {
			t.Fatalf("after %d toggles liked=%v, likedBy=%v", i, liked, got.LikedBy)
		}
	}
	if _, err := svc.ToggleLike(ctx, "fan", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDiscussionServiceGetCountsOneView(t *testing.T) {
	svc, store := newDiscussionService()
	d := mustCreateDiscussion(t, svc, "author")
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		got, err := svc.Get(ctx, d.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ViewCount != int64(i) {
			t.Fatalf("expected view count %d, got %d", i, got.ViewCount)
		}
	}
	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.ToggleLike(ctx, "fan", d.ID); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	if store.views != 2 {
		t.Fatalf("only Get should count views, got %d", store.views)
	}
}

func TestDiscussionServiceAuthorOnlyUpdateAndDelete(t *testing.T) {
	svc, _ := newDiscussionService()
	d := mustCreateDiscussion(t, svc, "author")
	ctx := context.Background()
	title := "New title"

	if _, err := svc.Update(ctx, "other", d.ID, domain.DiscussionPatch{Title: &title}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden update, got %v", err)
	}
	got, err := svc.Update(ctx, "author", d.ID, domain.DiscussionPatch{Title: &title})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != title || got.Body != d.Body {
		t.Fatalf("expected only title changed, got %+v", got)
	}

	if err := svc.Delete(ctx, "other", d.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	if err := svc.Delete(ctx, "author", d.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, d.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestDiscussionServiceCommentPermissions(t *testing.T) {
	svc, _ := newDiscussionService()
	d := mustCreateDiscussion(t, svc, "author")
	ctx := context.Background()

	for _, user := range []string{"c1", "c2", "c3"} {
		if _, err := svc.AddComment(ctx, user, d.ID, "comment by "+user); err != nil {
			t.Fatalf("AddComment: %v", err)
		}
	}
	if _, err := svc.AddComment(ctx, "c1", "missing", "hi"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for missing discussion, got %v", err)
	}

	if _, err := svc.EditComment(ctx, "author", d.ID, "c-1", "edited"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected discussion author to be unable to edit, got %v", err)
	}
	got, err := svc.EditComment(ctx, "c1", d.ID, "c-1", "edited")
	if err != nil {
		t.Fatalf("EditComment: %v", err)
	}
	if c, _ := got.Comment("c-1"); c.Body != "edited" {
		t.Fatalf("expected edited body, got %q", c.Body)
	}

	if _, err := svc.RemoveComment(ctx, "c1", d.ID, "c-2"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden removing someone else's comment, got %v", err)
	}
	if _, err := svc.RemoveComment(ctx, "c2", d.ID, "c-2"); err != nil {
		t.Fatalf("comment author remove: %v", err)
	}
	got, err = svc.RemoveComment(ctx, "author", d.ID, "c-1")
	if err != nil {
		t.Fatalf("discussion author remove: %v", err)
	}
	if len(got.Comments) != 1 || got.Comments[0].ID != "c-3" {
		t.Fatalf("unexpected remaining comments: %+v", got.Comments)
	}
	if _, err := svc.RemoveComment(ctx, "author", d.ID, "c-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for removed comment, got %v", err)
	}
}

func TestDiscussionServiceToggleCommentLike(t *testing.T) {
	svc, _ := newDiscussionService()
	d := mustCreateDiscussion(t, svc, "author")
	ctx := context.Background()

	if _, err := svc.AddComment(ctx, "c1", d.ID, "first"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	got, err := svc.ToggleCommentLike(ctx, "fan", d.ID, "c-1")
	if err != nil {
		t.Fatalf("ToggleCommentLike: %v", err)
	}
	if c, _ := got.Comment("c-1"); len(c.LikedBy) != 1 {
		t.Fatalf("expected one like, got %v", c.LikedBy)
	}
	got, err = svc.ToggleCommentLike(ctx, "fan", d.ID, "c-1")
	if err != nil {
		t.Fatalf("ToggleCommentLike: %v", err)
	}
	if c, _ := got.Comment("c-1"); len(c.LikedBy) != 0 {
		t.Fatalf("expected like removed, got %v", c.LikedBy)
	}
}

func TestDiscussionServiceListPagination(t *testing.T) {
	svc, _ := newDiscussionService()
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		mustCreateDiscussion(t, svc, "author")
	}

	page, err := svc.List(ctx, domain.DiscussionFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Page != 1 || page.Total != 12 || page.TotalPages != 2 || len(page.Discussions) != 10 {
		t.Fatalf("unexpected first page: page=%d total=%d pages=%d n=%d", page.Page, page.Total, page.TotalPages, len(page.Discussions))
	}
	if !page.Discussions[0].CreatedAt.After(page.Discussions[1].CreatedAt) {
		t.Fatalf("expected newest first")
	}

	page, err = svc.List(ctx, domain.DiscussionFilter{Page: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Discussions) != 2 {
		t.Fatalf("expected 2 on last page, got %d", len(page.Discussions))
	}

	if _, err := svc.List(ctx, domain.DiscussionFilter{Category: "rant"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
