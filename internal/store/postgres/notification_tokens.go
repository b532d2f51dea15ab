package postgres

import (
	"context"
	"fmt"
	"time"

	"MovieTrackr/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const tokenColumns = `id, user_id, token, platform, created_at, updated_at`

type NotificationTokensStore struct {
	pool *pgxpool.Pool
}

func NewNotificationTokensStore(pool *pgxpool.Pool) *NotificationTokensStore {
	return &NotificationTokensStore{pool: pool}
}

func scanToken(row pgx.Row) (domain.NotificationToken, error) {
	var (
		t        domain.NotificationToken
		idUUID   pgtype.UUID
		userUUID pgtype.UUID
	)
	if err := row.Scan(&idUUID, &userUUID, &t.Token, &t.Platform, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.NotificationToken{}, err
	}
	t.ID = uuidOrEmpty(idUUID)
	t.UserID = uuidOrEmpty(userUUID)
	return t, nil
}

// UpsertToken registers token for userID. A token moves to the latest user
// that registers it (shared devices), and the user's oldest tokens beyond
// domain.MaxDevicesPerUser are evicted in the same transaction.
func (s *NotificationTokensStore) UpsertToken(ctx context.Context, userID, token, platform string, when time.Time) (domain.NotificationToken, error) {
	if !validUUID(userID) {
		return domain.NotificationToken{}, domain.ErrNotFound
	}
	const upsert = `
		INSERT INTO notification_tokens (user_id, token, platform, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (token)
		DO UPDATE SET
			user_id = EXCLUDED.user_id,
			platform = EXCLUDED.platform,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + tokenColumns
	const evict = `
		DELETE FROM notification_tokens
		WHERE user_id = $1
		  AND id NOT IN (
			SELECT id FROM notification_tokens
			WHERE user_id = $1
			ORDER BY updated_at DESC, id
			LIMIT $2
		  )
	`

	var out domain.NotificationToken
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		out, err = scanToken(tx.QueryRow(ctx, upsert, userID, token, platform, when))
		if err != nil {
			return fmt.Errorf("upsert notification token: %w", err)
		}
		if _, err := tx.Exec(ctx, evict, userID, domain.MaxDevicesPerUser); err != nil {
			return fmt.Errorf("evict notification tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.NotificationToken{}, err
	}
	return out, nil
}

func (s *NotificationTokensStore) DeleteToken(ctx context.Context, userID, token string) error {
	if !validUUID(userID) {
		return domain.ErrNotFound
	}
	const q = `
		DELETE FROM notification_tokens
		WHERE user_id = $1 AND token = $2
	`
	ct, err := s.pool.Exec(ctx, q, userID, token)
	if err != nil {
		return fmt.Errorf("delete notification token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListTokens returns userID's tokens, most recently refreshed first.
func (s *NotificationTokensStore) ListTokens(ctx context.Context, userID string) ([]domain.NotificationToken, error) {
	if !validUUID(userID) {
		return nil, nil
	}
	const q = `SELECT ` + tokenColumns + `
		FROM notification_tokens
		WHERE user_id = $1
		ORDER BY updated_at DESC`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list notification tokens: %w", err)
	}
	defer rows.Close()

	var out []domain.NotificationToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification token: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notification tokens: %w", err)
	}
	return out, nil
}
