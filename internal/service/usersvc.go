package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"MovieTrackr/internal/domain"
)

const (
	minSearchQuery     = 3
	maxSearchQuery     = 64
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

type UsersSearchStore interface {
	SearchUsers(ctx context.Context, q string, limit int, excludeUserID string) ([]domain.UserSummary, error)
}

// UsersService finds people to send friend requests to.
type UsersService struct {
	Store UsersSearchStore
}

// Search matches q against usernames, emails and display names, leaving out
// the caller. A leading "@" is ignored so "@ripley" finds ripley.
func (s *UsersService) Search(ctx context.Context, q string, limit int, excludeUserID string) ([]domain.UserSummary, error) {
	q = strings.TrimPrefix(strings.TrimSpace(q), "@")
	switch n := utf8.RuneCountInString(q); {
	case n < minSearchQuery:
		return nil, domain.NewValidationError(map[string]string{"q": "must be at least 3 characters"})
	case n > maxSearchQuery:
		return nil, domain.NewValidationError(map[string]string{"q": "must be 64 characters or less"})
	}
	if limit <= 0 || limit > maxSearchLimit {
		limit = defaultSearchLimit
	}
	return s.Store.SearchUsers(ctx, q, limit, excludeUserID)
}
