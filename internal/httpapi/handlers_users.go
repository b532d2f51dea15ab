package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"MovieTrackr/internal/auth"
	"MovieTrackr/internal/domain"
)

type userResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email,omitempty"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Bio         string     `json:"bio"`
	Tags        []string   `json:"tags"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func toUserResponse(u domain.User) userResponse {
	tags := u.Profile.Tags
	if tags == nil {
		tags = []string{}
	}
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		DisplayName: u.Profile.DisplayName,
		Bio:         u.Profile.Bio,
		Tags:        tags,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   formatMillis(u.UpdatedAt),
		LastLoginAt: u.LastLoginAt,
	}
}

func writeUser(w http.ResponseWriter, status int, u domain.User) {
	w.Header().Set("ETag", userETag(u))
	WriteJSON(w, status, toUserResponse(u))
}

func (a *api) handleUsersMe(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=0")
	etag := userETag(u)
	if match := strings.TrimSpace(r.Header.Get("If-None-Match")); match != "" && match == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	writeUser(w, http.StatusOK, u)
}

func (a *api) handleUsersMeDelete(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}
	if a.authSvc == nil {
		WriteError(w, http.StatusServiceUnavailable, "auth_unavailable", "auth unavailable")
		return
	}

	if err := a.authSvc.DeleteUser(r.Context(), u.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		WriteDomainError(w, err)
		return
	}

	auth.ClearSessionCookie(w, a.cookieSecure)
	w.WriteHeader(http.StatusNoContent)
}

type updateProfileRequest struct {
	DisplayName *string   `json:"display_name" validate:"omitnil,max=48"`
	Bio         *string   `json:"bio" validate:"omitnil,max=500"`
	Tags        *[]string `json:"tags" validate:"omitnil,max=20"`
}

func (a *api) handleUsersMeUpdate(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req updateProfileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	updated, err := a.profileSvc.UpdateProfile(r.Context(), u.ID, domain.ProfilePatch{
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		Tags:        req.Tags,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	writeUser(w, http.StatusOK, updated)
}

func (a *api) handleUsersSearch(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	out, err := a.usersSvc.Search(r.Context(), q, limit, u.ID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if out == nil {
		out = []domain.UserSummary{}
	}
	WriteJSON(w, http.StatusOK, out)
}

func userETag(u domain.User) string {
	return fmt.Sprintf("W/\"user:%s:%d\"", u.ID, u.UpdatedAt.UnixNano())
}

func formatMillis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
