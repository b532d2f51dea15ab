package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"MovieTrackr/internal/domain"
)

type createDiscussionRequest struct {
	Title      string   `json:"title" validate:"required,max=200"`
	Body       string   `json:"body" validate:"required,max=10000"`
	MovieID    string   `json:"movie_id" validate:"required,max=32"`
	MovieTitle string   `json:"movie_title" validate:"max=300"`
	PosterRef  string   `json:"poster_ref" validate:"max=1024"`
	Category   string   `json:"category" validate:"omitempty,oneof=review theory recommendation general"`
	Tags       []string `json:"tags" validate:"max=10,dive,max=32"`
}

type updateDiscussionRequest struct {
	Title    *string   `json:"title" validate:"omitnil,max=200"`
	Body     *string   `json:"body" validate:"omitnil,max=10000"`
	Category *string   `json:"category" validate:"omitnil,oneof=review theory recommendation general"`
	Tags     *[]string `json:"tags" validate:"omitnil,max=10"`
}

type commentRequest struct {
	Body string `json:"body" validate:"required,max=2000"`
}

func (a *api) handleDiscussionsList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.DiscussionFilter{
		MovieID:  strings.TrimSpace(q.Get("movie_id")),
		Category: domain.DiscussionCategory(strings.ToLower(strings.TrimSpace(q.Get("category")))),
		Page:     queryInt(q.Get("page"), 1),
		Limit:    queryInt(q.Get("limit"), 0),
	}

	out, err := a.discussionsSvc.List(r.Context(), f)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if out.Discussions == nil {
		out.Discussions = []domain.Discussion{}
	}
	WriteJSON(w, http.StatusOK, out)
}

func (a *api) handleDiscussionsCreate(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req createDiscussionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	out, err := a.discussionsSvc.Create(r.Context(), u.ID, domain.NewDiscussion{
		Title:      req.Title,
		Body:       req.Body,
		MovieID:    req.MovieID,
		MovieTitle: req.MovieTitle,
		PosterRef:  req.PosterRef,
		Category:   domain.DiscussionCategory(req.Category),
		Tags:       req.Tags,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, out)
}

func (a *api) handleDiscussionsGet(w http.ResponseWriter, r *http.Request) {
	out, err := a.discussionsSvc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, out)
}

func (a *api) handleDiscussionsUpdate(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req updateDiscussionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	patch := domain.DiscussionPatch{Title: req.Title, Body: req.Body, Tags: req.Tags}
	if req.Category != nil {
		c := domain.DiscussionCategory(*req.Category)
		patch.Category = &c
	}

	out, err := a.discussionsSvc.Update(r.Context(), u.ID, r.PathValue("id"), patch)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

func (a *api) handleDiscussionsDelete(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	if err := a.discussionsSvc.Delete(r.Context(), u.ID, r.PathValue("id")); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleDiscussionsLike(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	out, err := a.discussionsSvc.ToggleLike(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

func (a *api) handleCommentsAdd(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req commentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	out, err := a.discussionsSvc.AddComment(r.Context(), u.ID, r.PathValue("id"), req.Body)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, out)
}

func (a *api) handleCommentsEdit(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req commentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	out, err := a.discussionsSvc.EditComment(r.Context(), u.ID, r.PathValue("id"), r.PathValue("commentID"), req.Body)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

func (a *api) handleCommentsDelete(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	out, err := a.discussionsSvc.RemoveComment(r.Context(), u.ID, r.PathValue("id"), r.PathValue("commentID"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

func (a *api) handleCommentsLike(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	out, err := a.discussionsSvc.ToggleCommentLike(r.Context(), u.ID, r.PathValue("id"), r.PathValue("commentID"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

func queryInt(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
