package service

import (
	"context"
	"errors"
	"sync"

	"MovieTrackr/internal/domain"
)

// memListsStore mirrors the Postgres list constraints: one list per
// (user, kind) and one entry per (list, movie).
type memListsStore struct {
	mu    sync.Mutex
	lists map[string]map[domain.ListKind]*domain.List

	// failDeleteOnce makes the next DeleteEntry fail, simulating a crash
	// between the two writes of a move.
	failDeleteOnce bool
	inserts        int
}

func newMemListsStore() *memListsStore {
	return &memListsStore{lists: map[string]map[domain.ListKind]*domain.List{}}
}

func (m *memListsStore) EnsureLists(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lists[userID] == nil {
		m.lists[userID] = map[domain.ListKind]*domain.List{}
	}
	for _, k := range domain.ListKinds {
		if _, ok := m.lists[userID][k]; !ok {
			m.lists[userID][k] = &domain.List{ID: userID + "-" + string(k), UserID: userID, Kind: k, Entries: []domain.ListEntry{}}
		}
	}
	return nil
}

func (m *memListsStore) CreateList(_ context.Context, userID string, kind domain.ListKind) (domain.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lists[userID] == nil {
		m.lists[userID] = map[domain.ListKind]*domain.List{}
	}
	if _, ok := m.lists[userID][kind]; ok {
		return domain.List{}, domain.ErrConflict
	}
	l := &domain.List{ID: userID + "-" + string(kind), UserID: userID, Kind: kind, Entries: []domain.ListEntry{}}
	m.lists[userID][kind] = l
	return copyList(l), nil
}

func (m *memListsStore) GetLists(_ context.Context, userID string) ([]domain.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.List{}
	for _, k := range domain.ListKinds {
		if l, ok := m.lists[userID][k]; ok {
			out = append(out, copyList(l))
		}
	}
	return out, nil
}

func (m *memListsStore) GetList(_ context.Context, userID string, kind domain.ListKind) (domain.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[userID][kind]
	if !ok {
		return domain.List{}, domain.ErrNotFound
	}
	return copyList(l), nil
}

func (m *memListsStore) InsertEntry(_ context.Context, userID string, kind domain.ListKind, entry domain.ListEntry) (domain.ListEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[userID][kind]
	if !ok {
		return domain.ListEntry{}, domain.ErrNotFound
	}
	if l.Contains(entry.MovieID) {
		return domain.ListEntry{}, domain.ErrDuplicateEntry
	}
	m.inserts++
	l.Entries = append(l.Entries, entry)
	return entry, nil
}

func (m *memListsStore) DeleteEntry(_ context.Context, userID string, kind domain.ListKind, movieID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDeleteOnce {
		m.failDeleteOnce = false
		return false, errors.New("connection reset")
	}
	l, ok := m.lists[userID][kind]
	if !ok {
		return false, nil
	}
	for i, e := range l.Entries {
		if e.MovieID == movieID {
			l.Entries = append(l.Entries[:i], l.Entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memListsStore) UpdateEntry(_ context.Context, userID string, kind domain.ListKind, movieID string, patch domain.EntryPatch) (domain.ListEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[userID][kind]
	if !ok {
		return domain.ListEntry{}, domain.ErrNotFound
	}
	for i := range l.Entries {
		e := &l.Entries[i]
		if e.MovieID != movieID {
			continue
		}
		if patch.UserRating != nil {
			v := *patch.UserRating
			e.UserRating = &v
		}
		if patch.Notes != nil {
			e.Notes = *patch.Notes
		}
		if patch.WatchedDate != nil {
			v := *patch.WatchedDate
			e.WatchedDate = &v
		}
		return *e, nil
	}
	return domain.ListEntry{}, domain.ErrNotFound
}

func copyList(l *domain.List) domain.List {
	out := *l
	out.Entries = append([]domain.ListEntry{}, l.Entries...)
	return out
}
