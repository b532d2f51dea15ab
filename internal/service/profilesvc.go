package service

import (
	"context"
	"strings"

	"MovieTrackr/internal/domain"
)

type ProfileStore interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	UpdateProfile(ctx context.Context, userID string, p domain.Profile) (domain.User, error)
}

type ProfileService struct {
	Store ProfileStore
}

const (
	maxDisplayNameLength = 48
	maxBioLength         = 500
	maxProfileTags       = 20
	maxTagLength         = 32
)

func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (domain.User, error) {
	fields := map[string]string{}

	var displayName, bio string
	if patch.DisplayName != nil {
		displayName = strings.TrimSpace(*patch.DisplayName)
		if len(displayName) > maxDisplayNameLength {
			fields["display_name"] = "must be 48 characters or less"
		}
		for _, r := range displayName {
			if r < 32 {
				fields["display_name"] = "contains invalid characters"
				break
			}
		}
	}
	if patch.Bio != nil {
		bio = strings.TrimSpace(*patch.Bio)
		if len(bio) > maxBioLength {
			fields["bio"] = "must be 500 characters or less"
		}
	}
	var tags []string
	if patch.Tags != nil {
		tags = profileTags(*patch.Tags)
		if len(tags) > maxProfileTags {
			fields["tags"] = "at most 20 tags"
		}
		for _, t := range tags {
			if len(t) > maxTagLength {
				fields["tags"] = "each tag must be 32 characters or less"
				break
			}
		}
	}
	if len(fields) > 0 {
		return domain.User{}, domain.NewValidationError(fields)
	}

	u, err := s.Store.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	p := u.Profile
	if patch.DisplayName != nil {
		p.DisplayName = displayName
	}
	if patch.Bio != nil {
		p.Bio = bio
	}
	if patch.Tags != nil {
		p.Tags = tags
	}
	return s.Store.UpdateProfile(ctx, userID, p)
}

// profileTags lowercases and trims tags, dropping empties and repeats.
func profileTags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
