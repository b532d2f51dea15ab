package domain

import "time"

type ReminderChannel string

const (
	ChannelEmail ReminderChannel = "email"
	ChannelApp   ReminderChannel = "app"
	ChannelBoth  ReminderChannel = "both"
)

func (c ReminderChannel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelApp, ChannelBoth:
		return true
	}
	return false
}

func (c ReminderChannel) WantsEmail() bool { return c == ChannelEmail || c == ChannelBoth }
func (c ReminderChannel) WantsApp() bool   { return c == ChannelApp || c == ChannelBoth }

type ReminderStatus string

const (
	ReminderActive    ReminderStatus = "active"
	ReminderSent      ReminderStatus = "sent"
	ReminderCancelled ReminderStatus = "cancelled"
)

func (s ReminderStatus) Valid() bool {
	switch s {
	case ReminderActive, ReminderSent, ReminderCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a reminder may move from s to next.
// Sent and cancelled are terminal; staying in the same status is always allowed.
func (s ReminderStatus) CanTransition(next ReminderStatus) bool {
	if s == next {
		return true
	}
	return s == ReminderActive && (next == ReminderSent || next == ReminderCancelled)
}

type Reminder struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	MovieID     string          `json:"movie_id"`
	Title       string          `json:"title"`
	PosterRef   string          `json:"poster_ref,omitempty"`
	ReleaseDate *time.Time      `json:"release_date,omitempty"`
	TriggerDate time.Time       `json:"trigger_date"`
	Channel     ReminderChannel `json:"channel"`
	Status      ReminderStatus  `json:"status"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`
}

type NewReminder struct {
	MovieID     string
	Title       string
	PosterRef   string
	ReleaseDate *time.Time
	TriggerDate time.Time
	Channel     ReminderChannel
	Notes       string
}

type ReminderPatch struct {
	TriggerDate *time.Time
	Channel     *ReminderChannel
	Notes       *string
	Status      *ReminderStatus
}
