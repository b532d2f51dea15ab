package service

import (
	"context"
	"errors"
	"testing"

	"MovieTrackr/internal/domain"
)

type stubUsersSearchStore struct {
	t *testing.T

	searchFunc func(context.Context, string, int, string) ([]domain.UserSummary, error)
}

func (s *stubUsersSearchStore) SearchUsers(ctx context.Context, q string, limit int, excludeUserID string) ([]domain.UserSummary, error) {
	if s.searchFunc != nil {
		return s.searchFunc(ctx, q, limit, excludeUserID)
	}
	s.t.Fatalf("SearchUsers called unexpectedly")
	return nil, context.Canceled
}

func TestUsersServiceSearchStripsAtSign(t *testing.T) {
	svc := &UsersService{Store: &stubUsersSearchStore{
		t: t,
		searchFunc: func(_ context.Context, q string, limit int, exclude string) ([]domain.UserSummary, error) {
			if q != "ripley" || limit != defaultSearchLimit || exclude != "user-1" {
				t.Fatalf("unexpected search args: %q %d %q", q, limit, exclude)
			}
			return []domain.UserSummary{{ID: "user-2", Username: "ripley"}}, nil
		},
	}}

	got, err := svc.Search(context.Background(), "  @ripley ", 500, "user-1")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "user-2" {
		t.Fatalf("unexpected results: %+v", got)
	}
}

func TestUsersServiceSearchRejectsShortQuery(t *testing.T) {
	svc := &UsersService{Store: &stubUsersSearchStore{t: t}}

	// Three bytes, but only two characters.
	_, err := svc.Search(context.Background(), "@é", 10, "user-1")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = svc.Search(context.Background(), "ab", 10, "user-1")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
