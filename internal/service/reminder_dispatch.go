package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"MovieTrackr/internal/domain"
)

type ReminderDeliveryStore interface {
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.Reminder, error)
	GetReminderByID(ctx context.Context, id string) (domain.Reminder, error)
	MarkSent(ctx context.Context, id string, when time.Time) (bool, error)
}

// ReminderQueue hands a due reminder to a background worker.
type ReminderQueue interface {
	PublishReminder(ctx context.Context, reminderID string) error
}

type ReminderEmailer interface {
	SendReminder(ctx context.Context, toEmail string, r domain.Reminder) error
}

// ReminderDispatcher drives the system-side active -> sent transition.
type ReminderDispatcher struct {
	Reminders ReminderDeliveryStore
	Users     NotificationUsersStore
	Email     ReminderEmailer
	Push      ReminderNotifier
	// Queue is optional; without it due reminders are delivered inline.
	Queue ReminderQueue

	Lease     time.Duration
	BatchSize int
	Logger    *slog.Logger
	Now       func() time.Time
}

const (
	defaultDispatchLease = 10 * time.Minute
	defaultDispatchBatch = 100
)

// DispatchDue claims active reminders whose trigger date has passed and
// either queues or delivers each one. It returns how many were handed off.
func (d *ReminderDispatcher) DispatchDue(ctx context.Context) (int, error) {
	if d.Now == nil {
		d.Now = time.Now
	}
	lease := d.Lease
	if lease <= 0 {
		lease = defaultDispatchLease
	}
	batch := d.BatchSize
	if batch <= 0 {
		batch = defaultDispatchBatch
	}
	logger := d.logger()

	due, err := d.Reminders.ClaimDue(ctx, d.Now().UTC(), lease, batch)
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, r := range due {
		if d.Queue != nil {
			if err := d.Queue.PublishReminder(ctx, r.ID); err != nil {
				logger.Error("reminders: publish failed", "reminder_id", r.ID, "err", err)
				continue
			}
			handled++
			continue
		}
		if err := d.Deliver(ctx, r.ID); err != nil {
			logger.Error("reminders: delivery failed", "reminder_id", r.ID, "err", err)
			continue
		}
		handled++
	}
	if len(due) > 0 {
		logger.Info("reminders dispatched", "claimed", len(due), "handled", handled)
	}
	return handled, nil
}

// Deliver sends one reminder through its channels and marks it sent. A
// reminder that is no longer active is skipped, so a redelivered job is a
// no-op. The reminder counts as sent once any requested channel succeeds.
func (d *ReminderDispatcher) Deliver(ctx context.Context, id string) error {
	if d.Now == nil {
		d.Now = time.Now
	}
	logger := d.logger()

	r, err := d.Reminders.GetReminderByID(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != domain.ReminderActive {
		return nil
	}

	var errs []error
	delivered := false
	if r.Channel.WantsEmail() {
		if err := d.sendEmail(ctx, r); err != nil {
			logger.Warn("reminders: email failed", "reminder_id", r.ID, "err", err)
			errs = append(errs, err)
		} else {
			delivered = true
		}
	}
	if r.Channel.WantsApp() {
		if err := d.sendPush(ctx, r); err != nil {
			logger.Warn("reminders: push failed", "reminder_id", r.ID, "err", err)
			errs = append(errs, err)
		} else {
			delivered = true
		}
	}
	if !delivered {
		return fmt.Errorf("deliver reminder %s: %w", r.ID, errors.Join(errs...))
	}

	if _, err := d.Reminders.MarkSent(ctx, r.ID, d.Now().UTC()); err != nil {
		return err
	}
	return nil
}

// Run calls DispatchDue every interval until ctx is cancelled.
func (d *ReminderDispatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchDue(ctx); err != nil && ctx.Err() == nil {
			d.logger().Error("reminders: dispatch failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *ReminderDispatcher) sendEmail(ctx context.Context, r domain.Reminder) error {
	if d.Email == nil || d.Users == nil {
		return errors.New("email unavailable")
	}
	u, err := d.Users.GetUserByID(ctx, r.UserID)
	if err != nil {
		return err
	}
	return d.Email.SendReminder(ctx, u.Email, r)
}

func (d *ReminderDispatcher) sendPush(ctx context.Context, r domain.Reminder) error {
	if d.Push == nil {
		return errors.New("push unavailable")
	}
	return d.Push.NotifyReminder(ctx, r)
}

func (d *ReminderDispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
