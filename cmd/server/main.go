package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"MovieTrackr/internal/auth"
	"MovieTrackr/internal/config"
	"MovieTrackr/internal/email"
	"MovieTrackr/internal/httpapi"
	"MovieTrackr/internal/metadata"
	"MovieTrackr/internal/notifications"
	"MovieTrackr/internal/queue"
	"MovieTrackr/internal/service"
	"MovieTrackr/internal/store/postgres"
)

const sessionSweepInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		authSvc          *service.AuthService
		usersSvc         *service.UsersService
		profileSvc       *service.ProfileService
		listsSvc         *service.ListService
		remindersSvc     *service.ReminderService
		friendsSvc       *service.FriendsService
		discussionsSvc   *service.DiscussionService
		notificationsSvc *service.NotificationService
		movies           service.MovieLookup
		movieSearch      service.MovieSearcher
		dbPing           func(context.Context) error
	)

	if catalog := newMovieLookup(ctx, cfg, logger); catalog != nil {
		movies = catalog
		movieSearch = catalog
	}

	if cfg.DBDSN != "" {
		if err := postgres.Migrate(cfg.DBDSN, logger); err != nil {
			logger.Error("db migrate failed", "err", err)
			os.Exit(1)
		}
		pgPool, err := postgres.Open(ctx, cfg.DBDSN)
		if err != nil {
			logger.Error("db open failed", "err", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		users := postgres.NewUsersStore(pgPool)
		sessions := postgres.NewSessionsStore(pgPool)
		friendships := postgres.NewFriendshipsStore(pgPool)
		lists := postgres.NewListsStore(pgPool)
		reminders := postgres.NewRemindersStore(pgPool)
		discussions := postgres.NewDiscussionsStore(pgPool)
		tokens := postgres.NewNotificationTokensStore(pgPool)
		userSearch := postgres.NewUserSearchStore(pgPool)

		notificationsSvc = &service.NotificationService{
			Tokens: tokens,
			Users:  users,
			Logger: logger,
		}
		if sender := newPushSender(ctx, cfg, logger); sender != nil {
			notificationsSvc.Sender = sender
		}

		authSvc = &service.AuthService{
			Users:               users,
			Sessions:            sessions,
			Lists:               lists,
			SessionTTL:          cfg.SessionTTL,
			Logger:              logger,
			GoogleWebClientID:   cfg.GoogleClientID,
			AppleServiceID:      cfg.AppleServiceID,
			VerifyGoogleIDToken: auth.VerifyGoogleIDToken,
			VerifyAppleIDToken:  auth.VerifyAppleIDToken,
		}
		friendsSvc = &service.FriendsService{
			Users:       users,
			Friendships: friendships,
			Notifier:    notificationsSvc,
			Logger:      logger,
		}
		listsSvc = &service.ListService{
			Store:   lists,
			Friends: friendsSvc,
			Movies:  movies,
			Logger:  logger,
		}
		remindersSvc = &service.ReminderService{
			Store:  reminders,
			Movies: movies,
			Logger: logger,
		}
		discussionsSvc = &service.DiscussionService{
			Store:  discussions,
			Movies: movies,
			Logger: logger,
		}
		usersSvc = &service.UsersService{Store: userSearch}
		profileSvc = &service.ProfileService{Store: users}
		dbPing = pgPool.Ping

		dispatcher := &service.ReminderDispatcher{
			Reminders: reminders,
			Users:     users,
			Push:      notificationsSvc,
			BatchSize: cfg.ReminderBatchSize,
			Logger:    logger,
		}
		if cfg.SMTP.Enabled() {
			dispatcher.Email = newEmailService(cfg)
		}
		if cfg.RabbitMQURL != "" {
			pub, err := queue.NewPublisher(cfg.RabbitMQURL, cfg.ReminderQueue)
			if err != nil {
				logger.Error("reminder queue unavailable, delivering inline", "err", err)
			} else {
				defer pub.Close()
				dispatcher.Queue = pub
				logger.Info("reminder queue enabled", "queue", cfg.ReminderQueue)
			}
		}
		go dispatcher.Run(ctx, cfg.ReminderInterval)
		go sweepSessions(ctx, logger, sessions)
	}

	apiRouter := httpapi.NewRouter(httpapi.RouterOpts{
		Logger:        logger,
		IsProd:        cfg.IsProd(),
		DBPing:        dbPing,
		Auth:          authSvc,
		Users:         usersSvc,
		Profile:       profileSvc,
		Lists:         listsSvc,
		Reminders:     remindersSvc,
		Friends:       friendsSvc,
		Discussions:   discussionsSvc,
		Notifications: notificationsSvc,
		Movies:        movies,
		MovieSearch:   movieSearch,
		CookieCodec:   auth.NewCookieCodec([]byte(cfg.CookieSecret)),
		TokenCodec:    auth.NewTokenCodec([]byte(cfg.JWTSecret)),
		CookieSecure:  cfg.CookieSecure(),
		SessionTTL:    cfg.SessionTTL,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "env", cfg.Env, "addr", cfg.Addr, "db_enabled", cfg.DBDSN != "")
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}
}

// newMovieLookup returns nil when no OMDb key is configured. Redis is
// optional; without it lookups go straight to OMDb.
func newMovieLookup(ctx context.Context, cfg config.Config, logger *slog.Logger) metadata.Client {
	if cfg.OMDBAPIKey == "" {
		logger.Info("movie metadata disabled")
		return nil
	}
	omdb := metadata.NewOMDBClient(cfg.OMDBAPIKey, cfg.OMDBBaseURL, cfg.OMDBRatePerSec)
	if cfg.RedisAddr == "" {
		return omdb
	}
	rdb, err := metadata.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Warn("metadata cache unavailable", "err", err)
		return omdb
	}
	return metadata.NewCache(omdb, rdb, cfg.MetadataCacheTTL, logger)
}

func newPushSender(ctx context.Context, cfg config.Config, logger *slog.Logger) *notifications.FCMSender {
	if cfg.FCMProjectID == "" {
		logger.Info("push notifications disabled")
		return nil
	}
	sender, err := notifications.NewFCMSender(ctx, cfg.FCMProjectID, cfg.FCMCredentials)
	if err != nil {
		logger.Error("fcm init failed", "err", err)
		return nil
	}
	return sender
}

func newEmailService(cfg config.Config) *service.EmailService {
	publicURL := ""
	if cfg.PublicURL != nil {
		publicURL = cfg.PublicURL.String()
	}
	return &service.EmailService{
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

func sweepSessions(ctx context.Context, logger *slog.Logger, sessions *postgres.SessionsStore) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				logger.Error("session sweep failed", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("expired sessions removed", "count", n)
			}
		}
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
