package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"MovieTrackr/internal/domain"
)

type RemindersStore interface {
	CreateReminder(ctx context.Context, userID string, in domain.NewReminder, when time.Time) (domain.Reminder, error)
	GetReminder(ctx context.Context, userID, id string) (domain.Reminder, error)
	HasActiveReminder(ctx context.Context, userID, movieID string) (bool, error)
	ListReminders(ctx context.Context, userID string, status domain.ReminderStatus) ([]domain.Reminder, error)
	ListUpcoming(ctx context.Context, userID string, from, to time.Time) ([]domain.Reminder, error)
	UpdateReminder(ctx context.Context, userID, id string, expected domain.ReminderStatus, patch domain.ReminderPatch, when time.Time) (domain.Reminder, error)
	DeleteReminder(ctx context.Context, userID, id string) error
}

type ReminderService struct {
	Store  RemindersStore
	Movies MovieLookup
	Logger *slog.Logger
	Now    func() time.Time
}

const upcomingWindow = 7 * 24 * time.Hour

// Create registers a reminder for a movie. At most one active reminder may
// exist per user and movie.
func (s *ReminderService) Create(ctx context.Context, userID string, in domain.NewReminder) (domain.Reminder, error) {
	if s.Now == nil {
		s.Now = time.Now
	}
	in.MovieID = strings.TrimSpace(in.MovieID)
	in.Title = strings.TrimSpace(in.Title)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.Channel == "" {
		in.Channel = domain.ChannelApp
	}

	fields := map[string]string{}
	if in.MovieID == "" {
		fields["movie_id"] = "required"
	}
	if in.TriggerDate.IsZero() {
		fields["trigger_date"] = "required"
	}
	if !in.Channel.Valid() {
		fields["channel"] = "must be one of email, app, both"
	}
	if len(in.Notes) > maxNotesLength {
		fields["notes"] = "must be 2000 characters or less"
	}
	if len(fields) > 0 {
		return domain.Reminder{}, domain.NewValidationError(fields)
	}

	exists, err := s.Store.HasActiveReminder(ctx, userID, in.MovieID)
	if err != nil {
		return domain.Reminder{}, err
	}
	if exists {
		return domain.Reminder{}, domain.ErrConflict
	}

	var lookupErr error
	if in.Title == "" || in.PosterRef == "" || in.ReleaseDate == nil {
		var movie domain.Movie
		movie, lookupErr = s.lookup(ctx, in.MovieID)
		if lookupErr == nil {
			if in.Title == "" {
				in.Title = movie.Title
			}
			if in.PosterRef == "" {
				in.PosterRef = movie.PosterRef
			}
			if in.ReleaseDate == nil {
				in.ReleaseDate = movie.ReleaseDate
			}
		}
	}
	if in.Title == "" {
		if lookupErr != nil && !errors.Is(lookupErr, domain.ErrNotFound) {
			return domain.Reminder{}, domain.ErrUpstreamUnavailable
		}
		return domain.Reminder{}, domain.NewValidationError(map[string]string{"title": "required"})
	}

	in.TriggerDate = in.TriggerDate.UTC()
	return s.Store.CreateReminder(ctx, userID, in, s.Now().UTC())
}

func (s *ReminderService) Get(ctx context.Context, userID, id string) (domain.Reminder, error) {
	return s.Store.GetReminder(ctx, userID, id)
}

// List returns the user's reminders ordered by trigger date. An empty status
// returns all of them.
func (s *ReminderService) List(ctx context.Context, userID string, status domain.ReminderStatus) ([]domain.Reminder, error) {
	if status != "" && !status.Valid() {
		return nil, domain.NewValidationError(map[string]string{"status": "must be one of active, sent, cancelled"})
	}
	return s.Store.ListReminders(ctx, userID, status)
}

// Upcoming returns active reminders that trigger within the next seven days.
func (s *ReminderService) Upcoming(ctx context.Context, userID string) ([]domain.Reminder, error) {
	if s.Now == nil {
		s.Now = time.Now
	}
	now := s.Now().UTC()
	return s.Store.ListUpcoming(ctx, userID, now, now.Add(upcomingWindow))
}

func (s *ReminderService) Update(ctx context.Context, userID, id string, patch domain.ReminderPatch) (domain.Reminder, error) {
	if s.Now == nil {
		s.Now = time.Now
	}

	fields := map[string]string{}
	if patch.Channel != nil && !patch.Channel.Valid() {
		fields["channel"] = "must be one of email, app, both"
	}
	if patch.Status != nil && !patch.Status.Valid() {
		fields["status"] = "must be one of active, sent, cancelled"
	}
	if patch.TriggerDate != nil && patch.TriggerDate.IsZero() {
		fields["trigger_date"] = "must be a valid date"
	}
	if patch.Notes != nil {
		notes := strings.TrimSpace(*patch.Notes)
		if len(notes) > maxNotesLength {
			fields["notes"] = "must be 2000 characters or less"
		}
		patch.Notes = &notes
	}
	if len(fields) > 0 {
		return domain.Reminder{}, domain.NewValidationError(fields)
	}

	current, err := s.Store.GetReminder(ctx, userID, id)
	if err != nil {
		return domain.Reminder{}, err
	}
	if patch.Status != nil && !current.Status.CanTransition(*patch.Status) {
		return domain.Reminder{}, domain.ErrInvalidTransition
	}
	if patch.TriggerDate == nil && patch.Channel == nil && patch.Notes == nil && patch.Status == nil {
		return current, nil
	}
	if patch.TriggerDate != nil {
		t := patch.TriggerDate.UTC()
		patch.TriggerDate = &t
	}

	// The write is conditional on the status we validated against; a
	// concurrent transition makes it fail instead of being overwritten.
	return s.Store.UpdateReminder(ctx, userID, id, current.Status, patch, s.Now().UTC())
}

func (s *ReminderService) Delete(ctx context.Context, userID, id string) error {
	return s.Store.DeleteReminder(ctx, userID, id)
}

func (s *ReminderService) lookup(ctx context.Context, movieID string) (domain.Movie, error) {
	if s.Movies == nil {
		return domain.Movie{}, domain.ErrUpstreamUnavailable
	}
	movie, err := s.Movies.Lookup(ctx, movieID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger().Warn("movie lookup failed", "movie_id", movieID, "err", err)
	}
	return movie, err
}

func (s *ReminderService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
