package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"MovieTrackr/internal/domain"
)

type FriendshipsStore interface {
	CreateRequest(ctx context.Context, fromID, toID string, when time.Time) (string, error)
	HasPendingRequest(ctx context.Context, fromID, toID string) (bool, error)
	GetRequest(ctx context.Context, ownerID, requestID string) (domain.FriendRequest, error)
	ResolveRequest(ctx context.Context, ownerID, requestID string, status domain.FriendRequestStatus, when time.Time) error
	AddFriend(ctx context.Context, userID, friendID string, when time.Time) (bool, error)
	RemoveFriend(ctx context.Context, userID, friendID string) (bool, error)
	IsFriend(ctx context.Context, userID, friendID string) (bool, error)
	ListFriends(ctx context.Context, userID string) ([]domain.UserSummary, error)
	ListIncoming(ctx context.Context, userID string) ([]domain.FriendRequest, error)
	ListOutgoing(ctx context.Context, userID string) ([]domain.FriendRequest, error)
}

type FriendUsersStore interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByLogin(ctx context.Context, login string) (domain.UserWithPassword, error)
}

type FriendsService struct {
	Users       FriendUsersStore
	Friendships FriendshipsStore
	Notifier    FriendRequestNotifier
	Logger      *slog.Logger
	Now         func() time.Time
}

func (s *FriendsService) ListOverview(ctx context.Context, userID string) (domain.FriendsOverview, error) {
	friends, err := s.Friendships.ListFriends(ctx, userID)
	if err != nil {
		return domain.FriendsOverview{}, err
	}
	incoming, err := s.Friendships.ListIncoming(ctx, userID)
	if err != nil {
		return domain.FriendsOverview{}, err
	}
	outgoing, err := s.Friendships.ListOutgoing(ctx, userID)
	if err != nil {
		return domain.FriendsOverview{}, err
	}
	return domain.FriendsOverview{Friends: friends, Incoming: incoming, Outgoing: outgoing}, nil
}

func (s *FriendsService) ListFriends(ctx context.Context, userID string) ([]domain.UserSummary, error) {
	return s.Friendships.ListFriends(ctx, userID)
}

// ListPendingRequests returns the pending requests addressed to userID.
func (s *FriendsService) ListPendingRequests(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	return s.Friendships.ListIncoming(ctx, userID)
}

// IsFriend reports whether friendID is in userID's friend set.
func (s *FriendsService) IsFriend(ctx context.Context, userID, friendID string) (bool, error) {
	return s.Friendships.IsFriend(ctx, userID, friendID)
}

// SendRequest appends a pending request from requesterID to the target's
// log. target is a username, an email or a user id.
func (s *FriendsService) SendRequest(ctx context.Context, requesterID, target string) (domain.FriendRequest, error) {
	if s.Now == nil {
		s.Now = time.Now
	}

	target = strings.TrimSpace(target)
	if target == "" {
		return domain.FriendRequest{}, domain.NewValidationError(map[string]string{"username": "required"})
	}

	to, err := s.resolveUser(ctx, target)
	if err != nil {
		return domain.FriendRequest{}, err
	}
	if to.ID == requesterID {
		return domain.FriendRequest{}, domain.ErrSelfRequest
	}
	if to.Status == domain.UserStatusDisabled {
		return domain.FriendRequest{}, domain.ErrNotFound
	}
	from, err := s.Users.GetUserByID(ctx, requesterID)
	if err != nil {
		return domain.FriendRequest{}, err
	}

	already, err := s.Friendships.IsFriend(ctx, to.ID, requesterID)
	if err != nil {
		return domain.FriendRequest{}, err
	}
	if already {
		return domain.FriendRequest{}, domain.ErrAlreadyFriends
	}
	pending, err := s.Friendships.HasPendingRequest(ctx, requesterID, to.ID)
	if err != nil {
		return domain.FriendRequest{}, err
	}
	if pending {
		return domain.FriendRequest{}, domain.ErrConflict
	}

	now := s.Now().UTC()
	id, err := s.Friendships.CreateRequest(ctx, requesterID, to.ID, now)
	if err != nil {
		return domain.FriendRequest{}, err
	}

	if s.Notifier != nil {
		if err := s.Notifier.NotifyFriendRequest(ctx, FriendRequestNotification{
			RequestID:   id,
			RequesterID: requesterID,
			AddresseeID: to.ID,
		}); err != nil {
			s.logger().Warn("friend request notification failed", "request_id", id, "err", err)
		}
	}

	return domain.FriendRequest{
		ID:        id,
		From:      summaryOf(from),
		To:        summaryOf(to),
		Status:    domain.FriendRequestPending,
		CreatedAt: now,
	}, nil
}

// Accept makes the requester and ownerID friends. Both friend-set writes are
// idempotent and happen before the request is marked accepted, so a retry
// after a partial failure completes the accept. If the request stopped being
// pending in the meantime and was not accepted by a concurrent call, the
// friendships this call created are removed.
func (s *FriendsService) Accept(ctx context.Context, ownerID, requestID string) error {
	if s.Now == nil {
		s.Now = time.Now
	}

	req, err := s.Friendships.GetRequest(ctx, ownerID, requestID)
	if err != nil {
		return err
	}
	if req.Status != domain.FriendRequestPending {
		return domain.ErrInvalidTransition
	}

	now := s.Now().UTC()
	addedOwner, err := s.Friendships.AddFriend(ctx, ownerID, req.From.ID, now)
	if err != nil {
		return err
	}
	addedRequester, err := s.Friendships.AddFriend(ctx, req.From.ID, ownerID, now)
	if err != nil {
		return err
	}

	err = s.Friendships.ResolveRequest(ctx, ownerID, requestID, domain.FriendRequestAccepted, now)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		return err
	}

	// Someone else resolved the request first. An overlapping accept needs
	// both directions kept; anything else gets this call's writes undone.
	current, getErr := s.Friendships.GetRequest(ctx, ownerID, requestID)
	if getErr != nil {
		s.logger().Error("friend accept reload failed", "request_id", requestID, "err", getErr)
		return err
	}
	if current.Status == domain.FriendRequestAccepted {
		return err
	}
	if addedOwner {
		if _, rbErr := s.Friendships.RemoveFriend(ctx, ownerID, req.From.ID); rbErr != nil {
			s.logger().Error("friend accept rollback failed", "request_id", requestID, "err", rbErr)
		}
	}
	if addedRequester {
		if _, rbErr := s.Friendships.RemoveFriend(ctx, req.From.ID, ownerID); rbErr != nil {
			s.logger().Error("friend accept rollback failed", "request_id", requestID, "err", rbErr)
		}
	}
	return err
}

func (s *FriendsService) Reject(ctx context.Context, ownerID, requestID string) error {
	if s.Now == nil {
		s.Now = time.Now
	}

	req, err := s.Friendships.GetRequest(ctx, ownerID, requestID)
	if err != nil {
		return err
	}
	if req.Status != domain.FriendRequestPending {
		return domain.ErrInvalidTransition
	}
	return s.Friendships.ResolveRequest(ctx, ownerID, requestID, domain.FriendRequestRejected, s.Now().UTC())
}

// RemoveFriend drops the friendship in both directions. Removing someone who
// is not a friend succeeds.
func (s *FriendsService) RemoveFriend(ctx context.Context, userID, friendID string) error {
	friendID = strings.TrimSpace(friendID)
	if friendID == "" {
		return domain.NewValidationError(map[string]string{"id": "required"})
	}
	if _, err := s.Friendships.RemoveFriend(ctx, userID, friendID); err != nil {
		return err
	}
	_, err := s.Friendships.RemoveFriend(ctx, friendID, userID)
	return err
}

func (s *FriendsService) resolveUser(ctx context.Context, target string) (domain.User, error) {
	u, err := s.Users.GetUserByLogin(ctx, target)
	if err == nil {
		return u.User, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}
	return s.Users.GetUserByID(ctx, target)
}

func (s *FriendsService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func summaryOf(u domain.User) domain.UserSummary {
	return domain.UserSummary{ID: u.ID, Username: u.Username, DisplayName: u.Profile.DisplayName}
}
