package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"MovieTrackr/internal/domain"
)

// memRemindersStore enforces one active reminder per (user, movie) and the
// conditional status write, like the Postgres store.
type memRemindersStore struct {
	mu         sync.Mutex
	seq        int
	reminders  map[string]*domain.Reminder
	dispatched map[string]time.Time
}

func newMemRemindersStore() *memRemindersStore {
	return &memRemindersStore{
		reminders:  map[string]*domain.Reminder{},
		dispatched: map[string]time.Time{},
	}
}

func (m *memRemindersStore) activeFor(userID, movieID, exceptID string) bool {
	for _, r := range m.reminders {
		if r.ID != exceptID && r.UserID == userID && r.MovieID == movieID && r.Status == domain.ReminderActive {
			return true
		}
	}
	return false
}

func (m *memRemindersStore) CreateReminder(_ context.Context, userID string, in domain.NewReminder, when time.Time) (domain.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeFor(userID, in.MovieID, "") {
		return domain.Reminder{}, domain.ErrConflict
	}
	m.seq++
	r := &domain.Reminder{
		ID:          fmt.Sprintf("rem-%d", m.seq),
		UserID:      userID,
		MovieID:     in.MovieID,
		Title:       in.Title,
		PosterRef:   in.PosterRef,
		ReleaseDate: in.ReleaseDate,
		TriggerDate: in.TriggerDate,
		Channel:     in.Channel,
		Status:      domain.ReminderActive,
		Notes:       in.Notes,
		CreatedAt:   when,
		UpdatedAt:   when,
	}
	m.reminders[r.ID] = r
	return *r, nil
}

func (m *memRemindersStore) GetReminder(_ context.Context, userID, id string) (domain.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok || r.UserID != userID {
		return domain.Reminder{}, domain.ErrNotFound
	}
	return *r, nil
}

func (m *memRemindersStore) GetReminderByID(_ context.Context, id string) (domain.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return domain.Reminder{}, domain.ErrNotFound
	}
	return *r, nil
}

func (m *memRemindersStore) HasActiveReminder(_ context.Context, userID, movieID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeFor(userID, movieID, ""), nil
}

func (m *memRemindersStore) sorted(keep func(*domain.Reminder) bool) []domain.Reminder {
	out := []domain.Reminder{}
	for _, r := range m.reminders {
		if keep(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggerDate.Before(out[j].TriggerDate) })
	return out
}

func (m *memRemindersStore) ListReminders(_ context.Context, userID string, status domain.ReminderStatus) ([]domain.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(r *domain.Reminder) bool {
		return r.UserID == userID && (status == "" || r.Status == status)
	}), nil
}

func (m *memRemindersStore) ListUpcoming(_ context.Context, userID string, from, to time.Time) ([]domain.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(r *domain.Reminder) bool {
		return r.UserID == userID && r.Status == domain.ReminderActive &&
			!r.TriggerDate.Before(from) && !r.TriggerDate.After(to)
	}), nil
}

func (m *memRemindersStore) UpdateReminder(_ context.Context, userID, id string, expected domain.ReminderStatus, patch domain.ReminderPatch, when time.Time) (domain.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok || r.UserID != userID {
		return domain.Reminder{}, domain.ErrNotFound
	}
	if r.Status != expected {
		return domain.Reminder{}, domain.ErrInvalidTransition
	}
	if patch.Status != nil && *patch.Status == domain.ReminderActive && r.Status != domain.ReminderActive && m.activeFor(userID, r.MovieID, id) {
		return domain.Reminder{}, domain.ErrConflict
	}
	if patch.TriggerDate != nil {
		r.TriggerDate = *patch.TriggerDate
		delete(m.dispatched, id)
	}
	if patch.Channel != nil {
		r.Channel = *patch.Channel
	}
	if patch.Notes != nil {
		r.Notes = *patch.Notes
	}
	if patch.Status != nil {
		r.Status = *patch.Status
	}
	r.UpdatedAt = when
	return *r, nil
}

func (m *memRemindersStore) DeleteReminder(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok || r.UserID != userID {
		return domain.ErrNotFound
	}
	delete(m.reminders, id)
	return nil
}

func (m *memRemindersStore) ClaimDue(_ context.Context, now time.Time, lease time.Duration, limit int) ([]domain.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	due := m.sorted(func(r *domain.Reminder) bool {
		if r.Status != domain.ReminderActive || r.TriggerDate.After(now) {
			return false
		}
		at, claimed := m.dispatched[r.ID]
		return !claimed || !at.After(now.Add(-lease))
	})
	if len(due) > limit {
		due = due[:limit]
	}
	for _, r := range due {
		m.dispatched[r.ID] = now
	}
	return due, nil
}

func (m *memRemindersStore) MarkSent(_ context.Context, id string, when time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if r.Status != domain.ReminderActive {
		return false, nil
	}
	r.Status = domain.ReminderSent
	r.SentAt = &when
	r.UpdatedAt = when
	return true, nil
}
