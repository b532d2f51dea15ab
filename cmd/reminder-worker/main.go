package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"MovieTrackr/internal/config"
	"MovieTrackr/internal/domain"
	"MovieTrackr/internal/email"
	"MovieTrackr/internal/notifications"
	"MovieTrackr/internal/queue"
	"MovieTrackr/internal/service"
	"MovieTrackr/internal/store/postgres"
)

// The worker delivers reminders the API server queued on RabbitMQ. It does
// not claim reminders itself; the server's dispatcher does that.
func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.LogLevel == "debug" {
		opts.Level = slog.LevelDebug
	}
	var logger *slog.Logger
	if cfg.IsProd() {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, opts))
	}

	if cfg.DBDSN == "" || cfg.RabbitMQURL == "" {
		logger.Error("APP_DB_DSN and APP_RABBITMQ_URL are required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgPool, err := postgres.Open(ctx, cfg.DBDSN)
	if err != nil {
		logger.Error("db open failed", "err", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	users := postgres.NewUsersStore(pgPool)
	dispatcher := &service.ReminderDispatcher{
		Reminders: postgres.NewRemindersStore(pgPool),
		Users:     users,
		Logger:    logger,
	}

	if cfg.FCMProjectID != "" {
		sender, err := notifications.NewFCMSender(ctx, cfg.FCMProjectID, cfg.FCMCredentials)
		if err != nil {
			logger.Error("fcm init failed", "err", err)
		} else {
			dispatcher.Push = &service.NotificationService{
				Tokens: postgres.NewNotificationTokensStore(pgPool),
				Users:  users,
				Sender: sender,
				Logger: logger,
			}
		}
	}
	if cfg.SMTP.Enabled() {
		publicURL := ""
		if cfg.PublicURL != nil {
			publicURL = cfg.PublicURL.String()
		}
		dispatcher.Email = &service.EmailService{
			Mailer: email.NewMailer(email.Settings{
				Host:      cfg.SMTP.Host,
				Port:      cfg.SMTP.Port,
				Username:  cfg.SMTP.Username,
				Password:  cfg.SMTP.Password,
				TLSMode:   cfg.SMTP.TLSMode,
				FromName:  cfg.SMTP.FromName,
				FromEmail: cfg.SMTP.FromEmail,
			}),
			PublicURL: publicURL,
		}
	}

	consumer := &queue.Consumer{
		URL:    cfg.RabbitMQURL,
		Queue:  cfg.ReminderQueue,
		Logger: logger,
	}
	err = consumer.Run(ctx, func(ctx context.Context, job queue.ReminderJob) error {
		err := dispatcher.Deliver(ctx, job.ReminderID)
		if errors.Is(err, domain.ErrNotFound) {
			return errors.Join(queue.ErrPermanent, err)
		}
		return err
	})
	if err != nil {
		logger.Error("consumer stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
