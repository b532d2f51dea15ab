package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"MovieTrackr/internal/domain"
)

// memFriendships keeps friend sets and request logs with the same pending
// uniqueness and conditional resolve as Postgres.
type memFriendships struct {
	mu       sync.Mutex
	seq      int
	users    map[string]domain.User
	friends  map[string]map[string]bool
	requests map[string]*domain.FriendRequest

	// beforeResolve runs once before the next ResolveRequest.
	beforeResolve func()
	adds          int
}

func newMemFriendships(usernames ...string) *memFriendships {
	m := &memFriendships{
		users:    map[string]domain.User{},
		friends:  map[string]map[string]bool{},
		requests: map[string]*domain.FriendRequest{},
	}
	for _, name := range usernames {
		id := "id-" + name
		m.users[id] = domain.User{ID: id, Username: name, Status: domain.UserStatusActive}
	}
	return m
}

func (m *memFriendships) GetUserByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (m *memFriendships) GetUserByLogin(_ context.Context, login string) (domain.UserWithPassword, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == login {
			return domain.UserWithPassword{User: u}, nil
		}
	}
	return domain.UserWithPassword{}, domain.ErrNotFound
}

func (m *memFriendships) CreateRequest(_ context.Context, fromID, toID string, when time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.From.ID == fromID && r.To.ID == toID && r.Status == domain.FriendRequestPending {
			return "", domain.ErrConflict
		}
	}
	m.seq++
	id := fmt.Sprintf("req-%d", m.seq)
	m.requests[id] = &domain.FriendRequest{
		ID:        id,
		From:      summaryOf(m.users[fromID]),
		To:        summaryOf(m.users[toID]),
		Status:    domain.FriendRequestPending,
		CreatedAt: when,
	}
	return id, nil
}

func (m *memFriendships) HasPendingRequest(_ context.Context, fromID, toID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.From.ID == fromID && r.To.ID == toID && r.Status == domain.FriendRequestPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *memFriendships) GetRequest(_ context.Context, ownerID, requestID string) (domain.FriendRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok || r.To.ID != ownerID {
		return domain.FriendRequest{}, domain.ErrNotFound
	}
	return *r, nil
}

func (m *memFriendships) ResolveRequest(ctx context.Context, ownerID, requestID string, status domain.FriendRequestStatus, when time.Time) error {
	if hook := m.beforeResolve; hook != nil {
		m.beforeResolve = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok || r.To.ID != ownerID {
		return domain.ErrNotFound
	}
	if r.Status != domain.FriendRequestPending {
		return domain.ErrInvalidTransition
	}
	r.Status = status
	r.ResolvedAt = &when
	return nil
}

func (m *memFriendships) AddFriend(_ context.Context, userID, friendID string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adds++
	if m.friends[userID] == nil {
		m.friends[userID] = map[string]bool{}
	}
	if m.friends[userID][friendID] {
		return false, nil
	}
	m.friends[userID][friendID] = true
	return true, nil
}

func (m *memFriendships) RemoveFriend(_ context.Context, userID, friendID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.friends[userID][friendID] {
		return false, nil
	}
	delete(m.friends[userID], friendID)
	return true, nil
}

func (m *memFriendships) IsFriend(_ context.Context, userID, friendID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.friends[userID][friendID], nil
}

func (m *memFriendships) ListFriends(_ context.Context, userID string) ([]domain.UserSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.UserSummary{}
	for id := range m.friends[userID] {
		out = append(out, summaryOf(m.users[id]))
	}
	return out, nil
}

func (m *memFriendships) listBy(match func(*domain.FriendRequest) bool) []domain.FriendRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.FriendRequest{}
	for _, r := range m.requests {
		if r.Status == domain.FriendRequestPending && match(r) {
			out = append(out, *r)
		}
	}
	return out
}

func (m *memFriendships) ListIncoming(_ context.Context, userID string) ([]domain.FriendRequest, error) {
	return m.listBy(func(r *domain.FriendRequest) bool { return r.To.ID == userID }), nil
}

func (m *memFriendships) ListOutgoing(_ context.Context, userID string) ([]domain.FriendRequest, error) {
	return m.listBy(func(r *domain.FriendRequest) bool { return r.From.ID == userID }), nil
}

type stubFriendRequestNotifier struct {
	calls []FriendRequestNotification
	err   error
}

func (s *stubFriendRequestNotifier) NotifyFriendRequest(_ context.Context, n FriendRequestNotification) error {
	s.calls = append(s.calls, n)
	return s.err
}

func newFriendsService(m *memFriendships) *FriendsService {
	return &FriendsService{
		Users:       m,
		Friendships: m,
		Now:         func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestFriendsServiceRequestAndAccept(t *testing.T) {
	m := newMemFriendships("alice", "bob")
	svc := newFriendsService(m)
	notifier := &stubFriendRequestNotifier{err: errors.New("fcm down")}
	svc.Notifier = notifier
	ctx := context.Background()

	fr, err := svc.SendRequest(ctx, "id-alice", "bob")
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if fr.From.Username != "alice" || fr.To.Username != "bob" || fr.Status != domain.FriendRequestPending {
		t.Fatalf("unexpected request: %+v", fr)
	}
	if len(notifier.calls) != 1 || notifier.calls[0].AddresseeID != "id-bob" {
		t.Fatalf("expected notification to bob, got %+v", notifier.calls)
	}

	pending, _ := svc.ListPendingRequests(ctx, "id-bob")
	if len(pending) != 1 || pending[0].ID != fr.ID {
		t.Fatalf("expected request in bob's log, got %+v", pending)
	}

	if err := svc.Accept(ctx, "id-bob", fr.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	for _, pair := range [][2]string{{"id-alice", "id-bob"}, {"id-bob", "id-alice"}} {
		if ok, _ := m.IsFriend(ctx, pair[0], pair[1]); !ok {
			t.Fatalf("expected %s to be friends with %s", pair[0], pair[1])
		}
	}
	if pending, _ := svc.ListPendingRequests(ctx, "id-bob"); len(pending) != 0 {
		t.Fatalf("expected no pending requests after accept")
	}

	adds := m.adds
	if err := svc.Accept(ctx, "id-bob", fr.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on repeat accept, got %v", err)
	}
	if m.adds != adds {
		t.Fatalf("repeat accept must not touch friend sets")
	}

	if _, err := svc.SendRequest(ctx, "id-alice", "bob"); !errors.Is(err, domain.ErrAlreadyFriends) {
		t.Fatalf("expected already friends, got %v", err)
	}
}

func TestFriendsServiceSendRequestErrors(t *testing.T) {
	m := newMemFriendships("alice", "bob")
	svc := newFriendsService(m)
	ctx := context.Background()

	if _, err := svc.SendRequest(ctx, "id-alice", "alice"); !errors.Is(err, domain.ErrSelfRequest) {
		t.Fatalf("expected self request, got %v", err)
	}
	if _, err := svc.SendRequest(ctx, "id-alice", "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.SendRequest(ctx, "id-alice", " "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.SendRequest(ctx, "id-alice", "id-bob"); err != nil {
		t.Fatalf("SendRequest by id: %v", err)
	}
	if _, err := svc.SendRequest(ctx, "id-alice", "bob"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for duplicate pending request, got %v", err)
	}
}

func TestFriendsServiceAcceptRetryAfterPartialFailure(t *testing.T) {
	m := newMemFriendships("alice", "bob")
	svc := newFriendsService(m)
	ctx := context.Background()

	fr, err := svc.SendRequest(ctx, "id-alice", "bob")
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	// Simulate a crash after the friend-set writes: only the adds happened.
	if _, err := m.AddFriend(ctx, "id-bob", "id-alice", time.Now()); err != nil {
		t.Fatalf("AddFriend: %v", err)
	}

	if err := svc.Accept(ctx, "id-bob", fr.ID); err != nil {
		t.Fatalf("retry Accept: %v", err)
	}
	if ok, _ := m.IsFriend(ctx, "id-alice", "id-bob"); !ok {
		t.Fatalf("expected retry to complete the friendship")
	}
	got, _ := m.GetRequest(ctx, "id-bob", fr.ID)
	if got.Status != domain.FriendRequestAccepted {
		t.Fatalf("expected accepted, got %s", got.Status)
	}
}

func TestFriendsServiceAcceptLosesRaceRollsBack(t *testing.T) {
	m := newMemFriendships("alice", "bob")
	svc := newFriendsService(m)
	ctx := context.Background()

	fr, err := svc.SendRequest(ctx, "id-alice", "bob")
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	m.beforeResolve = func() {
		_ = m.ResolveRequest(ctx, "id-bob", fr.ID, domain.FriendRequestRejected, time.Now())
	}

	if err := svc.Accept(ctx, "id-bob", fr.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	for _, pair := range [][2]string{{"id-alice", "id-bob"}, {"id-bob", "id-alice"}} {
		if ok, _ := m.IsFriend(ctx, pair[0], pair[1]); ok {
			t.Fatalf("expected rollback of %s -> %s", pair[0], pair[1])
		}
	}
}

func TestFriendsServiceOverlappingAcceptsStayMutual(t *testing.T) {
	m := newMemFriendships("alice", "bob")
	svc := newFriendsService(m)
	ctx := context.Background()

	fr, err := svc.SendRequest(ctx, "id-alice", "bob")
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	var innerErr error
	m.beforeResolve = func() {
		innerErr = svc.Accept(ctx, "id-bob", fr.ID)
	}

	if err := svc.Accept(ctx, "id-bob", fr.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for the slower accept, got %v", err)
	}
	if innerErr != nil {
		t.Fatalf("inner Accept: %v", innerErr)
	}
	for _, pair := range [][2]string{{"id-alice", "id-bob"}, {"id-bob", "id-alice"}} {
		if ok, _ := m.IsFriend(ctx, pair[0], pair[1]); !ok {
			t.Fatalf("expected %s to stay friends with %s", pair[0], pair[1])
		}
	}
	got, _ := m.GetRequest(ctx, "id-bob", fr.ID)
	if got.Status != domain.FriendRequestAccepted {
		t.Fatalf("expected accepted, got %s", got.Status)
	}
}

func TestFriendsServiceAcceptAfterReject(t *testing.T) {
	m := newMemFriendships("alice", "bob")
	svc := newFriendsService(m)
	ctx := context.Background()

	fr, err := svc.SendRequest(ctx, "id-alice", "bob")
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if err := svc.Reject(ctx, "id-bob", fr.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	adds := m.adds
	if err := svc.Accept(ctx, "id-bob", fr.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if m.adds != adds {
		t.Fatalf("accept of a rejected request must not touch friend sets")
	}
	for _, pair := range [][2]string{{"id-alice", "id-bob"}, {"id-bob", "id-alice"}} {
		if ok, _ := m.IsFriend(ctx, pair[0], pair[1]); ok {
			t.Fatalf("expected %s and %s to stay strangers", pair[0], pair[1])
		}
	}
	got, _ := m.GetRequest(ctx, "id-bob", fr.ID)
	if got.Status != domain.FriendRequestRejected {
		t.Fatalf("expected rejected, got %s", got.Status)
	}
}

func TestFriendsServiceRejectAndRemove(t *testing.T) {
	m := newMemFriendships("alice", "bob", "carol")
	svc := newFriendsService(m)
	ctx := context.Background()

	fr, err := svc.SendRequest(ctx, "id-carol", "bob")
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if err := svc.Reject(ctx, "id-bob", fr.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if err := svc.Reject(ctx, "id-bob", fr.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if err := svc.Accept(ctx, "id-alice", fr.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for request outside owner's log, got %v", err)
	}

	fr, err = svc.SendRequest(ctx, "id-alice", "bob")
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if err := svc.Accept(ctx, "id-bob", fr.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := svc.RemoveFriend(ctx, "id-alice", "id-bob"); err != nil {
			t.Fatalf("RemoveFriend #%d: %v", i+1, err)
		}
	}
	overview, err := svc.ListOverview(ctx, "id-bob")
	if err != nil {
		t.Fatalf("ListOverview: %v", err)
	}
	if len(overview.Friends) != 0 {
		t.Fatalf("expected no friends, got %+v", overview.Friends)
	}
}
