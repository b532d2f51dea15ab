package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"MovieTrackr/internal/domain"
)

type createReminderRequest struct {
	MovieID     string `json:"movie_id" validate:"required,max=32"`
	Title       string `json:"title" validate:"max=300"`
	PosterRef   string `json:"poster_ref" validate:"max=1024"`
	ReleaseDate string `json:"release_date"`
	TriggerDate string `json:"trigger_date" validate:"required"`
	Channel     string `json:"channel" validate:"omitempty,oneof=email app both"`
	Notes       string `json:"notes" validate:"max=2000"`
}

type updateReminderRequest struct {
	TriggerDate *string `json:"trigger_date"`
	Channel     *string `json:"channel" validate:"omitnil,oneof=email app both"`
	Notes       *string `json:"notes" validate:"omitnil,max=2000"`
	Status      *string `json:"status" validate:"omitnil,oneof=active sent cancelled"`
}

var errBadDate = errors.New("bad date")

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates (UTC midnight).
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, errBadDate
}

func (a *api) handleRemindersCreate(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req createReminderRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	fields := map[string]string{}
	trigger, err := parseDate(req.TriggerDate)
	if err != nil {
		fields["trigger_date"] = "must be RFC3339 or YYYY-MM-DD"
	}
	var release *time.Time
	if strings.TrimSpace(req.ReleaseDate) != "" {
		t, err := parseDate(req.ReleaseDate)
		if err != nil {
			fields["release_date"] = "must be RFC3339 or YYYY-MM-DD"
		} else {
			release = &t
		}
	}
	if len(fields) > 0 {
		WriteDomainError(w, domain.NewValidationError(fields))
		return
	}

	out, err := a.remindersSvc.Create(r.Context(), u.ID, domain.NewReminder{
		MovieID:     req.MovieID,
		Title:       req.Title,
		PosterRef:   req.PosterRef,
		ReleaseDate: release,
		TriggerDate: trigger,
		Channel:     domain.ReminderChannel(req.Channel),
		Notes:       req.Notes,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, out)
}

func (a *api) handleRemindersList(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	status := domain.ReminderStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	out, err := a.remindersSvc.List(r.Context(), u.ID, status)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if out == nil {
		out = []domain.Reminder{}
	}
	WriteJSON(w, http.StatusOK, out)
}

func (a *api) handleRemindersUpcoming(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	out, err := a.remindersSvc.Upcoming(r.Context(), u.ID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if out == nil {
		out = []domain.Reminder{}
	}
	WriteJSON(w, http.StatusOK, out)
}

func (a *api) handleRemindersGet(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	out, err := a.remindersSvc.Get(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

func (a *api) handleRemindersUpdate(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req updateReminderRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	var patch domain.ReminderPatch
	if req.TriggerDate != nil {
		t, err := parseDate(*req.TriggerDate)
		if err != nil {
			WriteDomainError(w, domain.NewValidationError(map[string]string{"trigger_date": "must be RFC3339 or YYYY-MM-DD"}))
			return
		}
		patch.TriggerDate = &t
	}
	if req.Channel != nil {
		c := domain.ReminderChannel(*req.Channel)
		patch.Channel = &c
	}
	if req.Status != nil {
		s := domain.ReminderStatus(*req.Status)
		patch.Status = &s
	}
	patch.Notes = req.Notes

	out, err := a.remindersSvc.Update(r.Context(), u.ID, r.PathValue("id"), patch)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

func (a *api) handleRemindersDelete(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	if err := a.remindersSvc.Delete(r.Context(), u.ID, r.PathValue("id")); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
