package service

import (
	"context"
	"fmt"
	"strings"

	"MovieTrackr/internal/domain"
	"MovieTrackr/internal/email"
)

type MailSender interface {
	Send(ctx context.Context, msg email.Message) error
}

// EmailService renders outgoing mail and hands it to the SMTP mailer.
type EmailService struct {
	Mailer    MailSender
	PublicURL string
}

func (s *EmailService) SendReminder(ctx context.Context, toEmail string, r domain.Reminder) error {
	if s == nil || s.Mailer == nil {
		return fmt.Errorf("smtp not configured")
	}
	toEmail = strings.TrimSpace(strings.ToLower(toEmail))
	if toEmail == "" {
		return fmt.Errorf("reminder recipient required")
	}

	lines := []string{
		"Hi,",
		"",
		"This is your MovieTrackr reminder for " + r.Title + ".",
	}
	if r.ReleaseDate != nil {
		lines = append(lines, "Release date: "+r.ReleaseDate.UTC().Format("January 2, 2006"))
	}
	if r.Notes != "" {
		lines = append(lines, "", "Your notes: "+r.Notes)
	}
	if base := strings.TrimRight(s.PublicURL, "/"); base != "" {
		lines = append(lines, "", "Manage your reminders: "+base+"/reminders")
	}
	lines = append(lines, "", "You set this reminder yourself; cancel it any time in the app.")

	return s.Mailer.Send(ctx, email.Message{
		ToEmail:  toEmail,
		Subject:  "Reminder: " + r.Title,
		TextBody: strings.Join(lines, "\n"),
	})
}
