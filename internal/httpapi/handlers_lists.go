package httpapi

import (
	"net/http"
	"strings"
	"time"

	"MovieTrackr/internal/domain"
)

type createListRequest struct {
	Kind string `json:"kind" validate:"required,oneof=watchlist watched favorites"`
}

type addEntryRequest struct {
	MovieID        string     `json:"movie_id" validate:"required,max=32"`
	Title          string     `json:"title" validate:"max=300"`
	PosterRef      string     `json:"poster_ref" validate:"max=1024"`
	ExternalRating string     `json:"external_rating" validate:"max=16"`
	UserRating     *int       `json:"user_rating" validate:"omitnil,min=0,max=10"`
	Notes          string     `json:"notes" validate:"max=2000"`
	WatchedDate    *time.Time `json:"watched_date"`
}

type updateEntryRequest struct {
	UserRating  *int       `json:"user_rating" validate:"omitnil,min=0,max=10"`
	Notes       *string    `json:"notes" validate:"omitnil,max=2000"`
	WatchedDate *time.Time `json:"watched_date"`
}

type moveEntryRequest struct {
	To string `json:"to" validate:"required,oneof=watchlist watched favorites"`
}

func (a *api) handleListsGetAll(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	lists, err := a.listsSvc.GetLists(r.Context(), u.ID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, lists)
}

func (a *api) handleListsCreate(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req createListRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	list, err := a.listsSvc.CreateList(r.Context(), u.ID, domain.ListKind(req.Kind))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, list)
}

func (a *api) handleListsGet(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	list, err := a.listsSvc.GetList(r.Context(), u.ID, listKind(r))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

func (a *api) handleListsAddEntry(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req addEntryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	list, err := a.listsSvc.AddEntry(r.Context(), u.ID, listKind(r), domain.ListEntry{
		MovieID:        req.MovieID,
		Title:          req.Title,
		PosterRef:      req.PosterRef,
		ExternalRating: req.ExternalRating,
		UserRating:     req.UserRating,
		Notes:          req.Notes,
		WatchedDate:    req.WatchedDate,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, list)
}

func (a *api) handleListsUpdateEntry(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req updateEntryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	list, err := a.listsSvc.UpdateEntry(r.Context(), u.ID, listKind(r), r.PathValue("movieID"), domain.EntryPatch{
		UserRating:  req.UserRating,
		Notes:       req.Notes,
		WatchedDate: req.WatchedDate,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

func (a *api) handleListsRemoveEntry(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	list, err := a.listsSvc.RemoveEntry(r.Context(), u.ID, listKind(r), r.PathValue("movieID"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

func (a *api) handleListsMoveEntry(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req moveEntryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	out, err := a.listsSvc.MoveEntry(r.Context(), u.ID, listKind(r), domain.ListKind(req.To), r.PathValue("movieID"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// handleFriendLists serves another user's lists to their friends.
func (a *api) handleFriendLists(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	ownerID := strings.TrimSpace(r.PathValue("id"))
	if ownerID == "" {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"id": "required"}))
		return
	}

	lists, err := a.listsSvc.FriendLists(r.Context(), u.ID, ownerID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, lists)
}

func listKind(r *http.Request) domain.ListKind {
	return domain.ListKind(strings.ToLower(strings.TrimSpace(r.PathValue("kind"))))
}
