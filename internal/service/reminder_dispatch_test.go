package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"MovieTrackr/internal/domain"
	"MovieTrackr/internal/email"
)

type stubReminderNotifier struct {
	err   error
	calls []string
}

func (s *stubReminderNotifier) NotifyReminder(_ context.Context, r domain.Reminder) error {
	s.calls = append(s.calls, r.ID)
	return s.err
}

type stubMailSender struct {
	sent []email.Message
	err  error
}

func (s *stubMailSender) Send(_ context.Context, msg email.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type stubReminderQueue struct {
	published []string
}

func (s *stubReminderQueue) PublishReminder(_ context.Context, id string) error {
	s.published = append(s.published, id)
	return nil
}

func seedReminder(t *testing.T, store *memRemindersStore, channel domain.ReminderChannel, trigger time.Time) domain.Reminder {
	t.Helper()
	r, err := store.CreateReminder(context.Background(), "user-1", domain.NewReminder{
		MovieID: "tt1375666", Title: "Inception", TriggerDate: trigger, Channel: channel,
	}, trigger.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	return r
}

func dispatcherUsers() *stubNotificationUsersStore {
	return &stubNotificationUsersStore{getByIDFunc: func(_ context.Context, id string) (domain.User, error) {
		return domain.User{ID: id, Email: "Viewer@Example.com", Username: "viewer"}, nil
	}}
}

func TestReminderDispatcherDeliversInlineAndMarksSent(t *testing.T) {
	now := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	store := newMemRemindersStore()
	r := seedReminder(t, store, domain.ChannelBoth, now.Add(-time.Minute))

	mailer := &stubMailSender{}
	push := &stubReminderNotifier{}
	d := &ReminderDispatcher{
		Reminders: store,
		Users:     dispatcherUsers(),
		Email:     &EmailService{Mailer: mailer, PublicURL: "https://movietrackr.example/"},
		Push:      push,
		Now:       func() time.Time { return now },
	}

	n, err := d.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("DispatchDue: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 handled, got %d", n)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].ToEmail != "viewer@example.com" || mailer.sent[0].Subject != "Reminder: Inception" {
		t.Fatalf("unexpected mail: %+v", mailer.sent)
	}
	if !strings.Contains(mailer.sent[0].TextBody, "https://movietrackr.example/reminders") {
		t.Fatalf("expected manage link in body: %q", mailer.sent[0].TextBody)
	}
	if len(push.calls) != 1 || push.calls[0] != r.ID {
		t.Fatalf("unexpected push calls: %v", push.calls)
	}

	got, _ := store.GetReminderByID(context.Background(), r.ID)
	if got.Status != domain.ReminderSent || got.SentAt == nil {
		t.Fatalf("expected sent, got %+v", got)
	}

	// A second delivery of the same reminder is a no-op.
	if err := d.Deliver(context.Background(), r.ID); err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	if len(mailer.sent) != 1 || len(push.calls) != 1 {
		t.Fatalf("expected no resend after sent")
	}
}

func TestReminderDispatcherSkipsFutureAndClaimedReminders(t *testing.T) {
	now := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	store := newMemRemindersStore()
	due := seedReminder(t, store, domain.ChannelApp, now.Add(-time.Minute))
	if _, err := store.CreateReminder(context.Background(), "user-2", domain.NewReminder{
		MovieID: "tt2", Title: "Later", TriggerDate: now.Add(time.Hour), Channel: domain.ChannelApp,
	}, now); err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	queue := &stubReminderQueue{}
	d := &ReminderDispatcher{
		Reminders: store,
		Queue:     queue,
		Lease:     5 * time.Minute,
		Now:       func() time.Time { return now },
	}

	if _, err := d.DispatchDue(context.Background()); err != nil {
		t.Fatalf("DispatchDue: %v", err)
	}
	if len(queue.published) != 1 || queue.published[0] != due.ID {
		t.Fatalf("expected only the due reminder queued, got %v", queue.published)
	}

	// Within the lease the claimed reminder is not queued again.
	d.Now = func() time.Time { return now.Add(time.Minute) }
	if _, err := d.DispatchDue(context.Background()); err != nil {
		t.Fatalf("DispatchDue: %v", err)
	}
	if len(queue.published) != 1 {
		t.Fatalf("expected no duplicate publish within lease, got %v", queue.published)
	}

	// After the lease it is retried while still active.
	d.Now = func() time.Time { return now.Add(10 * time.Minute) }
	if _, err := d.DispatchDue(context.Background()); err != nil {
		t.Fatalf("DispatchDue: %v", err)
	}
	if len(queue.published) != 2 {
		t.Fatalf("expected republish after lease, got %v", queue.published)
	}
}

func TestReminderDispatcherLeavesActiveWhenNothingDelivered(t *testing.T) {
	now := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	store := newMemRemindersStore()
	r := seedReminder(t, store, domain.ChannelBoth, now)

	d := &ReminderDispatcher{
		Reminders: store,
		Users:     dispatcherUsers(),
		Email:     &EmailService{Mailer: &stubMailSender{err: errors.New("535 auth failed")}},
		Push:      &stubReminderNotifier{err: errors.New("no devices")},
		Now:       func() time.Time { return now },
	}

	if err := d.Deliver(context.Background(), r.ID); err == nil {
		t.Fatalf("expected delivery error")
	}
	got, _ := store.GetReminderByID(context.Background(), r.ID)
	if got.Status != domain.ReminderActive {
		t.Fatalf("expected reminder to stay active, got %s", got.Status)
	}
}

func TestReminderDispatcherPartialChannelStillSends(t *testing.T) {
	now := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	store := newMemRemindersStore()
	r := seedReminder(t, store, domain.ChannelBoth, now)

	d := &ReminderDispatcher{
		Reminders: store,
		Users:     dispatcherUsers(),
		Email:     &EmailService{Mailer: &stubMailSender{}},
		Push:      &stubReminderNotifier{err: errors.New("no devices")},
		Now:       func() time.Time { return now },
	}

	if err := d.Deliver(context.Background(), r.ID); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	got, _ := store.GetReminderByID(context.Background(), r.ID)
	if got.Status != domain.ReminderSent {
		t.Fatalf("expected sent, got %s", got.Status)
	}
}

func TestReminderDispatcherDeliverUnknown(t *testing.T) {
	d := &ReminderDispatcher{Reminders: newMemRemindersStore()}
	if err := d.Deliver(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
