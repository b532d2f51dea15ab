package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"MovieTrackr/internal/domain"
	"MovieTrackr/internal/notifications"
)

type NotificationTokensStore interface {
	UpsertToken(ctx context.Context, userID, token, platform string, when time.Time) (domain.NotificationToken, error)
	DeleteToken(ctx context.Context, userID, token string) error
	ListTokens(ctx context.Context, userID string) ([]domain.NotificationToken, error)
}

type NotificationUsersStore interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
}

type PushSender interface {
	Send(ctx context.Context, token string, msg notifications.Message) error
}

type FriendRequestNotification struct {
	RequestID   string
	RequesterID string
	AddresseeID string
}

type FriendRequestNotifier interface {
	NotifyFriendRequest(ctx context.Context, notification FriendRequestNotification) error
}

// ReminderNotifier pushes a due reminder to the owner's devices.
type ReminderNotifier interface {
	NotifyReminder(ctx context.Context, r domain.Reminder) error
}

type NotificationService struct {
	Tokens NotificationTokensStore
	Users  NotificationUsersStore
	Sender PushSender
	Logger *slog.Logger
	Now    func() time.Time
}

func (s *NotificationService) RegisterToken(ctx context.Context, userID, token, platform string) (domain.NotificationToken, error) {
	if s.Tokens == nil {
		return domain.NotificationToken{}, errors.New("notifications unavailable")
	}
	token = strings.TrimSpace(token)
	platform = strings.TrimSpace(strings.ToLower(platform))
	if token == "" || platform == "" {
		return domain.NotificationToken{}, domain.NewValidationError(map[string]string{"token": "required", "platform": "required"})
	}
	if !domain.ValidPlatform(platform) {
		return domain.NotificationToken{}, domain.NewValidationError(map[string]string{"platform": "must be ios or android"})
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	when := s.Now().UTC().Truncate(time.Millisecond)
	return s.Tokens.UpsertToken(ctx, userID, token, platform, when)
}

func (s *NotificationService) DeleteToken(ctx context.Context, userID, token string) error {
	if s.Tokens == nil {
		return errors.New("notifications unavailable")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.NewValidationError(map[string]string{"token": "required"})
	}
	return s.Tokens.DeleteToken(ctx, userID, token)
}

func (s *NotificationService) NotifyFriendRequest(ctx context.Context, notification FriendRequestNotification) error {
	if s.Tokens == nil || s.Sender == nil || s.Users == nil {
		return nil
	}

	requester, err := s.Users.GetUserByID(ctx, notification.RequesterID)
	if err != nil {
		s.logger().Error("notifications: requester lookup failed", "err", err, "user_id", notification.RequesterID)
		return err
	}

	display := requester.DisplayLabel()
	body := "You received a friend request."
	if display != "" {
		body = display + " sent you a friend request."
	}
	payload := map[string]string{
		"type":         "friend_request",
		"display_name": display,
		"username":     requester.Username,
		"request_id":   notification.RequestID,
	}
	_, err = s.push(ctx, notification.AddresseeID, payload, "Friend request", body)
	return err
}

// NotifyReminder pushes r to every registered device of its owner. It
// fails only when no device accepted the message, so the dispatcher can
// retry a reminder nobody received.
func (s *NotificationService) NotifyReminder(ctx context.Context, r domain.Reminder) error {
	if s.Tokens == nil || s.Sender == nil {
		return errors.New("notifications unavailable")
	}

	payload := map[string]string{
		"type":        "reminder",
		"reminder_id": r.ID,
		"movie_id":    r.MovieID,
		"title":       r.Title,
	}
	body := r.Title + " is on your reminder list."
	if r.ReleaseDate != nil {
		body = r.Title + " releases " + r.ReleaseDate.UTC().Format("Jan 2, 2006") + "."
	}

	delivered, err := s.push(ctx, r.UserID, payload, "Movie reminder", body)
	if err != nil {
		return err
	}
	if delivered == 0 {
		return errors.New("no device accepted the reminder")
	}
	return nil
}

// push sends one message per token and prunes tokens FCM reports as
// unregistered. It returns how many sends succeeded.
func (s *NotificationService) push(ctx context.Context, userID string, payload map[string]string, title, body string) (int, error) {
	logger := s.logger()

	tokens, err := s.Tokens.ListTokens(ctx, userID)
	if err != nil {
		logger.Error("notifications: list tokens failed", "err", err, "user_id", userID)
		return 0, err
	}

	dataOnlyMsg := notifications.Message{Data: payload}
	iosAlertMsg := notifications.Message{
		Data: payload,
		Notification: &notifications.Notification{
			Title: title,
			Body:  body,
		},
	}

	delivered := 0
	for _, token := range tokens {
		msg := dataOnlyMsg
		if strings.TrimSpace(strings.ToLower(token.Platform)) == domain.PlatformIOS {
			msg = iosAlertMsg
		}
		if err := s.Sender.Send(ctx, token.Token, msg); err != nil {
			if errors.Is(err, notifications.ErrInvalidToken) {
				if delErr := s.Tokens.DeleteToken(ctx, userID, token.Token); delErr != nil {
					logger.Error("notifications: delete invalid token failed", "err", delErr, "user_id", userID)
				}
				continue
			}
			logger.Error("notifications: send failed", "err", err, "user_id", userID)
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (s *NotificationService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
