package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"MovieTrackr/internal/auth"
	"MovieTrackr/internal/domain"
)

type UsersStore interface {
	CreateUser(ctx context.Context, email, username, passwordHash string) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByLogin(ctx context.Context, login string) (domain.UserWithPassword, error)
	GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error)
	GetUserByExternalAccount(ctx context.Context, provider, providerID string) (domain.User, domain.ExternalAccount, error)
	CreateUserWithExternalAccount(ctx context.Context, provider, providerID, email, username, passwordHash string) (domain.User, domain.ExternalAccount, error)
	LinkExternalAccount(ctx context.Context, userID, provider, providerID, email string) (domain.ExternalAccount, error)
	SetLastLogin(ctx context.Context, userID string, when time.Time) error
	SetPasswordHash(ctx context.Context, userID, passwordHash string) error
	DeleteUser(ctx context.Context, userID string) error
}

type SessionsStore interface {
	CreateSession(ctx context.Context, userID string, expiresAt time.Time, ip, userAgent string) (string, error)
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	RevokeSession(ctx context.Context, sessionID string, when time.Time) error
}

// ListOnboarder creates the default lists a user owns. It must be
// idempotent: it runs on every sign-in so an interrupted sign-up heals.
type ListOnboarder interface {
	EnsureLists(ctx context.Context, userID string) error
}

type IDTokenVerifier func(ctx context.Context, token, audience string) (*auth.ExternalTokenClaims, error)

type AuthService struct {
	Users      UsersStore
	Sessions   SessionsStore
	Lists      ListOnboarder
	SessionTTL time.Duration
	Now        func() time.Time
	Logger     *slog.Logger

	GoogleWebClientID   string
	AppleServiceID      string
	VerifyGoogleIDToken IDTokenVerifier
	VerifyAppleIDToken  IDTokenVerifier
}

func (s *AuthService) Register(ctx context.Context, email, username, password, ip, userAgent string) (domain.User, string, error) {
	if s.Now == nil {
		s.Now = time.Now
	}

	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", err
	}

	u, err := s.Users.CreateUser(ctx, email, username, passwordHash)
	if err != nil {
		return domain.User{}, "", err
	}
	if err := s.onboard(ctx, u.ID); err != nil {
		return domain.User{}, "", err
	}

	sessID, err := s.Sessions.CreateSession(ctx, u.ID, s.Now().Add(s.SessionTTL), ip, userAgent)
	if err != nil {
		return domain.User{}, "", err
	}

	return u, sessID, nil
}

func (s *AuthService) Login(ctx context.Context, login, password, ip, userAgent string) (domain.User, string, error) {
	if s.Now == nil {
		s.Now = time.Now
	}

	login = strings.TrimSpace(login)

	u, err := s.Users.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, "", domain.ErrInvalidCredentials
		}
		return domain.User{}, "", err
	}
	if u.Status == domain.UserStatusDisabled {
		return domain.User{}, "", domain.ErrUserDisabled
	}

	ok, err := auth.VerifyPassword(u.PasswordHash, password)
	if err != nil {
		return domain.User{}, "", err
	}
	if !ok {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}
	if auth.NeedsRehash(u.PasswordHash) {
		s.rehash(ctx, u.ID, password)
	}

	return s.startSession(ctx, u.User, ip, userAgent)
}

// rehash stores password under the current hashing parameters. Failure only
// costs the upgrade, so the login goes ahead.
func (s *AuthService) rehash(ctx context.Context, userID, password string) {
	hash, err := auth.HashPassword(password)
	if err == nil {
		err = s.Users.SetPasswordHash(ctx, userID, hash)
	}
	if err != nil {
		s.logger().Warn("password rehash failed", "user_id", userID, "err", err)
	}
}

func (s *AuthService) LoginWithGoogle(ctx context.Context, idToken, ip, userAgent string) (domain.User, string, error) {
	return s.loginWithProvider(ctx, auth.ProviderGoogle, s.VerifyGoogleIDToken, s.GoogleWebClientID, idToken, ip, userAgent)
}

func (s *AuthService) LoginWithApple(ctx context.Context, idToken, ip, userAgent string) (domain.User, string, error) {
	return s.loginWithProvider(ctx, auth.ProviderApple, s.VerifyAppleIDToken, s.AppleServiceID, idToken, ip, userAgent)
}

func (s *AuthService) loginWithProvider(ctx context.Context, provider string, verify IDTokenVerifier, audience, idToken, ip, userAgent string) (domain.User, string, error) {
	if s.Now == nil {
		s.Now = time.Now
	}
	if verify == nil || strings.TrimSpace(audience) == "" {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}

	claims, err := verify(ctx, idToken, audience)
	if err != nil || claims == nil || claims.Subject == "" {
		s.logger().Info("external login rejected", "provider", provider, "err", err)
		return domain.User{}, "", domain.ErrInvalidCredentials
	}
	email := strings.TrimSpace(strings.ToLower(claims.Email))

	u, _, err := s.Users.GetUserByExternalAccount(ctx, provider, claims.Subject)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		u, err = s.linkOrCreate(ctx, provider, claims.Subject, email, claims.EmailVerified)
		if err != nil {
			return domain.User{}, "", err
		}
	default:
		return domain.User{}, "", err
	}

	if u.Status == domain.UserStatusDisabled {
		return domain.User{}, "", domain.ErrUserDisabled
	}
	return s.startSession(ctx, u, ip, userAgent)
}

// linkOrCreate attaches the provider identity to the account that owns email,
// or creates a new account. An existing account is only linked when the
// provider vouches for the address.
func (s *AuthService) linkOrCreate(ctx context.Context, provider, subject, email string, emailVerified bool) (domain.User, error) {
	if email == "" {
		return domain.User{}, domain.NewValidationError(map[string]string{"email": "provider did not supply an email"})
	}

	existing, err := s.Users.GetUserByEmail(ctx, email)
	if err == nil {
		if !emailVerified {
			s.logger().Info("external login: unverified email matches an account", "provider", provider, "user_id", existing.ID)
			return domain.User{}, domain.ErrExternalAccountExists
		}
		if _, err := s.Users.LinkExternalAccount(ctx, existing.ID, provider, subject, email); err != nil {
			return domain.User{}, err
		}
		return existing.User, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}

	secret, err := randomHex(32)
	if err != nil {
		return domain.User{}, err
	}
	passwordHash, err := auth.HashPassword(secret)
	if err != nil {
		return domain.User{}, err
	}

	for attempt := 0; attempt < 5; attempt++ {
		username, err := generatedUsername(email)
		if err != nil {
			return domain.User{}, err
		}
		u, _, err := s.Users.CreateUserWithExternalAccount(ctx, provider, subject, email, username, passwordHash)
		if errors.Is(err, domain.ErrUsernameTaken) {
			continue
		}
		return u, err
	}
	return domain.User{}, domain.ErrUsernameTaken
}

// startSession runs onboarding, opens a session and records the login time.
func (s *AuthService) startSession(ctx context.Context, u domain.User, ip, userAgent string) (domain.User, string, error) {
	if err := s.onboard(ctx, u.ID); err != nil {
		return domain.User{}, "", err
	}

	sessID, err := s.Sessions.CreateSession(ctx, u.ID, s.Now().Add(s.SessionTTL), ip, userAgent)
	if err != nil {
		return domain.User{}, "", err
	}

	if err := s.Users.SetLastLogin(ctx, u.ID, s.Now()); err != nil {
		s.logger().Warn("set last login failed", "user_id", u.ID, "err", err)
	}

	return u, sessID, nil
}

func (s *AuthService) onboard(ctx context.Context, userID string) error {
	if s.Lists == nil {
		return nil
	}
	return s.Lists.EnsureLists(ctx, userID)
}

func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if s.Now == nil {
		s.Now = time.Now
	}

	return s.Sessions.RevokeSession(ctx, sessionID, s.Now())
}

func (s *AuthService) DeleteUser(ctx context.Context, userID string) error {
	return s.Users.DeleteUser(ctx, userID)
}

func (s *AuthService) GetUserForSession(ctx context.Context, sessionID string) (domain.User, error) {
	sess, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.ErrUnauthorized
		}
		return domain.User{}, err
	}

	u, err := s.Users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.ErrUnauthorized
		}
		return domain.User{}, err
	}
	if u.Status == domain.UserStatusDisabled {
		return domain.User{}, domain.ErrForbidden
	}

	return u, nil
}

func (s *AuthService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// generatedUsername derives a handle from the email local part plus a random
// suffix, keeping within the 24 character username limit.
func generatedUsername(email string) (string, error) {
	local := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		local = email[:at]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
		if b.Len() == 16 {
			break
		}
	}
	base := b.String()
	if len(base) < 3 {
		base = "user"
	}
	suffix, err := randomHex(3)
	if err != nil {
		return "", err
	}
	return base + "_" + suffix, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
