package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env          string
	Addr         string
	PublicURL    *url.URL
	DBDSN        string
	CookieSecret string
	JWTSecret    string
	SessionTTL   time.Duration
	LogLevel     string

	GoogleClientID string
	AppleServiceID string

	OMDBAPIKey       string
	OMDBBaseURL      string
	OMDBRatePerSec   float64
	MetadataCacheTTL time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RabbitMQURL       string
	ReminderQueue     string
	ReminderInterval  time.Duration
	ReminderBatchSize int

	SMTP SMTPConfig

	FCMProjectID   string
	FCMCredentials string
}

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	TLSMode   string
	FromName  string
	FromEmail string
}

func (c SMTPConfig) Enabled() bool { return c.Host != "" && c.FromEmail != "" }

func Load() (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return LoadFromEnv(os.Getenv)
}

func LoadFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Env:            getenv("APP_ENV"),
		Addr:           getenv("APP_ADDR"),
		DBDSN:          getenv("APP_DB_DSN"),
		LogLevel:       getenv("APP_LOG_LEVEL"),
		CookieSecret:   getenv("APP_COOKIE_SECRET"),
		JWTSecret:      getenv("APP_JWT_SECRET"),
		GoogleClientID: strings.TrimSpace(getenv("APP_GOOGLE_CLIENT_ID")),
		AppleServiceID: strings.TrimSpace(getenv("APP_APPLE_SERVICE_ID")),
		OMDBAPIKey:     strings.TrimSpace(getenv("APP_OMDB_API_KEY")),
		OMDBBaseURL:    strings.TrimSpace(getenv("APP_OMDB_BASE_URL")),
		RedisAddr:      strings.TrimSpace(getenv("APP_REDIS_ADDR")),
		RedisPassword:  getenv("APP_REDIS_PASSWORD"),
		RabbitMQURL:    strings.TrimSpace(getenv("APP_RABBITMQ_URL")),
		ReminderQueue:  strings.TrimSpace(getenv("APP_REMINDER_QUEUE")),
		FCMProjectID:   strings.TrimSpace(getenv("APP_FCM_PROJECT_ID")),
		FCMCredentials: strings.TrimSpace(getenv("APP_FCM_CREDENTIALS")),
		SMTP: SMTPConfig{
			Host:      strings.TrimSpace(getenv("APP_SMTP_HOST")),
			Username:  getenv("APP_SMTP_USERNAME"),
			Password:  getenv("APP_SMTP_PASSWORD"),
			TLSMode:   strings.ToLower(strings.TrimSpace(getenv("APP_SMTP_TLS"))),
			FromName:  strings.TrimSpace(getenv("APP_SMTP_FROM_NAME")),
			FromEmail: strings.TrimSpace(getenv("APP_SMTP_FROM")),
		},
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if cfg.OMDBBaseURL == "" {
		cfg.OMDBBaseURL = "https://www.omdbapi.com/"
	}
	if cfg.ReminderQueue == "" {
		cfg.ReminderQueue = "reminders.due"
	}

	publicURLRaw := getenv("APP_PUBLIC_URL")
	if publicURLRaw != "" {
		parsed, err := url.Parse(publicURLRaw)
		if err != nil {
			return Config{}, fmt.Errorf("APP_PUBLIC_URL: %w", err)
		}
		if !parsed.IsAbs() || parsed.Host == "" {
			return Config{}, errors.New("APP_PUBLIC_URL: must be an absolute URL")
		}
		switch parsed.Scheme {
		case "http", "https":
		default:
			return Config{}, errors.New("APP_PUBLIC_URL: scheme must be http or https")
		}
		cfg.PublicURL = parsed
	}

	var err error
	if cfg.SessionTTL, err = positiveDuration(getenv, "APP_SESSION_TTL", 30*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.MetadataCacheTTL, err = positiveDuration(getenv, "APP_METADATA_CACHE_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.ReminderInterval, err = positiveDuration(getenv, "APP_REMINDER_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}

	if cfg.RedisDB, err = intOr(getenv, "APP_REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.SMTP.Port, err = intOr(getenv, "APP_SMTP_PORT", 587); err != nil {
		return Config{}, err
	}
	if cfg.ReminderBatchSize, err = intOr(getenv, "APP_REMINDER_BATCH_SIZE", 100); err != nil {
		return Config{}, err
	}
	if cfg.ReminderBatchSize <= 0 {
		return Config{}, errors.New("APP_REMINDER_BATCH_SIZE: must be > 0")
	}

	cfg.OMDBRatePerSec = 5
	if raw := strings.TrimSpace(getenv("APP_OMDB_RATE")); raw != "" {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Config{}, fmt.Errorf("APP_OMDB_RATE: %w", err)
		}
		if rate <= 0 {
			return Config{}, errors.New("APP_OMDB_RATE: must be > 0")
		}
		cfg.OMDBRatePerSec = rate
	}

	switch cfg.SMTP.TLSMode {
	case "", "starttls", "tls", "none":
	default:
		return Config{}, errors.New("APP_SMTP_TLS: must be one of starttls, tls, none")
	}

	switch cfg.Env {
	case "dev", "prod", "test":
	default:
		return Config{}, errors.New("APP_ENV: must be one of dev, test, prod")
	}

	if cfg.IsProd() {
		if cfg.PublicURL == nil {
			return Config{}, errors.New("APP_PUBLIC_URL: required in prod")
		}
		if cfg.DBDSN == "" {
			return Config{}, errors.New("APP_DB_DSN: required in prod")
		}
		if len(cfg.CookieSecret) < 32 {
			return Config{}, errors.New("APP_COOKIE_SECRET: must be at least 32 bytes in prod")
		}
		if len(cfg.JWTSecret) < 32 {
			return Config{}, errors.New("APP_JWT_SECRET: must be at least 32 bytes in prod")
		}
	}

	return cfg, nil
}

func (c Config) IsProd() bool { return c.Env == "prod" }

func (c Config) CookieSecure() bool {
	if c.PublicURL != nil {
		return c.PublicURL.Scheme == "https"
	}
	return c.IsProd()
}

func positiveDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be > 0", key)
	}
	return d, nil
}

func intOr(getenv func(string) string, key string, def int) (int, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
