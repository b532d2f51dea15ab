package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MovieTrackr/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsersStore struct {
	pool *pgxpool.Pool
}

func NewUsersStore(pool *pgxpool.Pool) *UsersStore {
	return &UsersStore{pool: pool}
}

const userColumns = `id, email, username, status, display_name, bio, tags, created_at, updated_at, last_login_at`

func scanUser(row pgx.Row, extra ...any) (domain.User, error) {
	var (
		u           domain.User
		idUUID      pgtype.UUID
		emailText   pgtype.Text
		tags        pgtype.FlatArray[string]
		lastLoginTS pgtype.Timestamptz
	)
	dest := []any{
		&idUUID,
		&emailText,
		&u.Username,
		&u.Status,
		&u.Profile.DisplayName,
		&u.Profile.Bio,
		&tags,
		&u.CreatedAt,
		&u.UpdatedAt,
		&lastLoginTS,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.User{}, err
	}

	u.ID = uuidOrEmpty(idUUID)
	u.Email = textOrEmpty(emailText)
	u.Profile.Tags = textArrayOrEmpty(tags)
	u.LastLoginAt = timestamptzPtr(lastLoginTS)
	return u, nil
}

func (s *UsersStore) CreateUser(ctx context.Context, email, username, passwordHash string) (domain.User, error) {
	const q = `
		INSERT INTO users (email, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING ` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, q, nullIfEmpty(email), username, passwordHash))
	if err != nil {
		return domain.User{}, mapUserWriteError(err)
	}
	return u, nil
}

func (s *UsersStore) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	if !validUUID(id) {
		return domain.User{}, domain.ErrNotFound
	}
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

func (s *UsersStore) GetUserByLogin(ctx context.Context, login string) (domain.UserWithPassword, error) {
	const q = `
		SELECT ` + userColumns + `, password_hash
		FROM users
		WHERE username = $1 OR (email IS NOT NULL AND email = lower($1))
		ORDER BY (username = $1) DESC
		LIMIT 1
	`

	var out domain.UserWithPassword
	u, err := scanUser(s.pool.QueryRow(ctx, q, login), &out.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserWithPassword{}, domain.ErrNotFound
		}
		return domain.UserWithPassword{}, fmt.Errorf("get user by login: %w", err)
	}
	out.User = u
	return out, nil
}

func (s *UsersStore) GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error) {
	const q = `
		SELECT ` + userColumns + `, password_hash
		FROM users
		WHERE email = $1
		LIMIT 1
	`

	var out domain.UserWithPassword
	u, err := scanUser(s.pool.QueryRow(ctx, q, email), &out.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserWithPassword{}, domain.ErrNotFound
		}
		return domain.UserWithPassword{}, fmt.Errorf("get user by email: %w", err)
	}
	out.User = u
	return out, nil
}

func (s *UsersStore) GetUserByExternalAccount(ctx context.Context, provider, providerID string) (domain.User, domain.ExternalAccount, error) {
	const q = `
		SELECT u.id, u.email, u.username, u.status, u.display_name, u.bio, u.tags,
		       u.created_at, u.updated_at, u.last_login_at,
		       ea.id, ea.email, ea.created_at
		FROM external_accounts ea
		JOIN users u ON u.id = ea.user_id
		WHERE ea.provider = $1 AND ea.provider_id = $2
	`

	var (
		acct      domain.ExternalAccount
		acctID    pgtype.UUID
		acctEmail pgtype.Text
	)
	u, err := scanUser(s.pool.QueryRow(ctx, q, provider, providerID), &acctID, &acctEmail, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ExternalAccount{}, domain.ErrNotFound
		}
		return domain.User{}, domain.ExternalAccount{}, fmt.Errorf("get user by external account: %w", err)
	}

	acct.ID = uuidOrEmpty(acctID)
	acct.UserID = u.ID
	acct.Provider = provider
	acct.ProviderID = providerID
	acct.Email = textOrEmpty(acctEmail)
	return u, acct, nil
}

func (s *UsersStore) CreateUserWithExternalAccount(ctx context.Context, provider, providerID, email, username, passwordHash string) (domain.User, domain.ExternalAccount, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.User{}, domain.ExternalAccount{}, fmt.Errorf("begin create external user: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertUser = `
		INSERT INTO users (email, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING ` + userColumns

	u, err := scanUser(tx.QueryRow(ctx, insertUser, nullIfEmpty(email), username, passwordHash))
	if err != nil {
		return domain.User{}, domain.ExternalAccount{}, mapUserWriteError(err)
	}

	acct, err := insertExternalAccount(ctx, tx, u.ID, provider, providerID, email)
	if err != nil {
		return domain.User{}, domain.ExternalAccount{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.User{}, domain.ExternalAccount{}, fmt.Errorf("commit create external user: %w", err)
	}
	return u, acct, nil
}

func (s *UsersStore) LinkExternalAccount(ctx context.Context, userID, provider, providerID, email string) (domain.ExternalAccount, error) {
	return insertExternalAccount(ctx, s.pool, userID, provider, providerID, email)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertExternalAccount(ctx context.Context, db queryRower, userID, provider, providerID, email string) (domain.ExternalAccount, error) {
	const q = `
		INSERT INTO external_accounts (user_id, provider, provider_id, email)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	acct := domain.ExternalAccount{
		UserID:     userID,
		Provider:   provider,
		ProviderID: providerID,
		Email:      email,
	}
	var idUUID pgtype.UUID
	err := db.QueryRow(ctx, q, userID, provider, providerID, nullIfEmpty(email)).Scan(&idUUID, &acct.CreatedAt)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return domain.ExternalAccount{}, domain.ErrExternalAccountExists
		}
		return domain.ExternalAccount{}, fmt.Errorf("link external account: %w", err)
	}
	acct.ID = uuidOrEmpty(idUUID)
	return acct, nil
}

func (s *UsersStore) SetLastLogin(ctx context.Context, userID string, when time.Time) error {
	const q = `
		UPDATE users
		SET last_login_at = $2, updated_at = now()
		WHERE id = $1
	`
	_, err := s.pool.Exec(ctx, q, userID, when)
	if err != nil {
		return fmt.Errorf("set last login: %w", err)
	}
	return nil
}

func (s *UsersStore) SetPasswordHash(ctx context.Context, userID, passwordHash string) error {
	if !validUUID(userID) {
		return domain.ErrNotFound
	}
	const q = `
		UPDATE users
		SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`
	ct, err := s.pool.Exec(ctx, q, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("set password hash: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *UsersStore) UpdateProfile(ctx context.Context, userID string, p domain.Profile) (domain.User, error) {
	const q = `
		UPDATE users
		SET display_name = $2, bio = $3, tags = $4, updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	u, err := scanUser(s.pool.QueryRow(ctx, q, userID, p.DisplayName, p.Bio, tags))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

// DeleteUser removes the user; lists, reminders, friendships, discussions and
// sessions go with it through ON DELETE CASCADE.
func (s *UsersStore) DeleteUser(ctx context.Context, userID string) error {
	if !validUUID(userID) {
		return domain.ErrNotFound
	}
	const q = `DELETE FROM users WHERE id = $1`

	ct, err := s.pool.Exec(ctx, q, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func mapUserWriteError(err error) error {
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case "users_username_uq":
			return domain.ErrUsernameTaken
		case "users_email_uq":
			return domain.ErrEmailTaken
		default:
			return fmt.Errorf("unique violation (%s): %w", constraint, err)
		}
	}
	return fmt.Errorf("create user: %w", err)
}
