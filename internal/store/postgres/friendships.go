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

type FriendshipsStore struct {
	pool *pgxpool.Pool
}

func NewFriendshipsStore(pool *pgxpool.Pool) *FriendshipsStore {
	return &FriendshipsStore{pool: pool}
}

const friendRequestSelect = `
	SELECT fr.id, fr.status, fr.created_at, fr.resolved_at,
	       f.id, f.username, f.display_name,
	       t.id, t.username, t.display_name
	FROM friend_requests fr
	JOIN users f ON f.id = fr.from_id
	JOIN users t ON t.id = fr.to_id
`

func scanFriendRequest(row pgx.Row) (domain.FriendRequest, error) {
	var (
		fr       domain.FriendRequest
		idUUID   pgtype.UUID
		status   string
		resolved pgtype.Timestamptz
		fromUUID pgtype.UUID
		toUUID   pgtype.UUID
	)
	err := row.Scan(
		&idUUID, &status, &fr.CreatedAt, &resolved,
		&fromUUID, &fr.From.Username, &fr.From.DisplayName,
		&toUUID, &fr.To.Username, &fr.To.DisplayName,
	)
	if err != nil {
		return domain.FriendRequest{}, err
	}
	fr.ID = uuidOrEmpty(idUUID)
	fr.Status = domain.FriendRequestStatus(status)
	fr.ResolvedAt = timestamptzPtr(resolved)
	fr.From.ID = uuidOrEmpty(fromUUID)
	fr.To.ID = uuidOrEmpty(toUUID)
	return fr, nil
}

func (s *FriendshipsStore) CreateRequest(ctx context.Context, fromID, toID string, when time.Time) (string, error) {
	const q = `
		INSERT INTO friend_requests (from_id, to_id, status, created_at)
		VALUES ($1, $2, 'pending', $3)
		RETURNING id
	`

	var idUUID pgtype.UUID
	err := s.pool.QueryRow(ctx, q, fromID, toID, when).Scan(&idUUID)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "friend_requests_pending_uq" {
			return "", domain.ErrConflict
		}
		return "", fmt.Errorf("create friend request: %w", err)
	}
	return uuidOrEmpty(idUUID), nil
}

func (s *FriendshipsStore) HasPendingRequest(ctx context.Context, fromID, toID string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM friend_requests
			WHERE from_id = $1 AND to_id = $2 AND status = 'pending'
		)
	`

	var exists bool
	if err := s.pool.QueryRow(ctx, q, fromID, toID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check pending request: %w", err)
	}
	return exists, nil
}

// GetRequest loads a request from ownerID's log, ownerID being the addressee.
func (s *FriendshipsStore) GetRequest(ctx context.Context, ownerID, requestID string) (domain.FriendRequest, error) {
	if !validUUID(requestID) {
		return domain.FriendRequest{}, domain.ErrNotFound
	}
	q := friendRequestSelect + ` WHERE fr.id = $1 AND fr.to_id = $2`

	fr, err := scanFriendRequest(s.pool.QueryRow(ctx, q, requestID, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FriendRequest{}, domain.ErrNotFound
		}
		return domain.FriendRequest{}, fmt.Errorf("get friend request: %w", err)
	}
	return fr, nil
}

// ResolveRequest moves a pending request to status. A request that is no
// longer pending yields ErrInvalidTransition.
func (s *FriendshipsStore) ResolveRequest(ctx context.Context, ownerID, requestID string, status domain.FriendRequestStatus, when time.Time) error {
	if !validUUID(requestID) {
		return domain.ErrNotFound
	}
	const q = `
		UPDATE friend_requests
		SET status = $3, resolved_at = $4
		WHERE id = $1 AND to_id = $2 AND status = 'pending'
	`

	ct, err := s.pool.Exec(ctx, q, requestID, ownerID, string(status), when)
	if err != nil {
		return fmt.Errorf("resolve friend request: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetRequest(ctx, ownerID, requestID); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

// AddFriend records friendID in userID's friend set. It reports whether the
// row was new, so callers can undo only what they added.
func (s *FriendshipsStore) AddFriend(ctx context.Context, userID, friendID string, when time.Time) (bool, error) {
	const q = `
		INSERT INTO user_friends (user_id, friend_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, friend_id) DO NOTHING
	`

	ct, err := s.pool.Exec(ctx, q, userID, friendID, when)
	if err != nil {
		return false, fmt.Errorf("add friend: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *FriendshipsStore) RemoveFriend(ctx context.Context, userID, friendID string) (bool, error) {
	const q = `DELETE FROM user_friends WHERE user_id = $1 AND friend_id = $2`

	ct, err := s.pool.Exec(ctx, q, userID, friendID)
	if err != nil {
		return false, fmt.Errorf("remove friend: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// IsFriend reports whether friendID is in userID's friend set.
func (s *FriendshipsStore) IsFriend(ctx context.Context, userID, friendID string) (bool, error) {
	if !validUUID(friendID) {
		return false, nil
	}
	const q = `SELECT EXISTS (SELECT 1 FROM user_friends WHERE user_id = $1 AND friend_id = $2)`

	var exists bool
	if err := s.pool.QueryRow(ctx, q, userID, friendID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check friend: %w", err)
	}
	return exists, nil
}

func (s *FriendshipsStore) ListFriends(ctx context.Context, userID string) ([]domain.UserSummary, error) {
	const q = `
		SELECT u.id, u.username, u.display_name
		FROM user_friends uf
		JOIN users u ON u.id = uf.friend_id
		WHERE uf.user_id = $1
		ORDER BY u.username ASC
	`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()

	out := []domain.UserSummary{}
	for rows.Next() {
		var (
			idUUID pgtype.UUID
			u      domain.UserSummary
		)
		if err := rows.Scan(&idUUID, &u.Username, &u.DisplayName); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		u.ID = uuidOrEmpty(idUUID)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return out, nil
}

func (s *FriendshipsStore) ListIncoming(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	q := friendRequestSelect + `
		WHERE fr.to_id = $1 AND fr.status = 'pending'
		ORDER BY fr.created_at DESC
	`
	return s.listRequests(ctx, q, userID, "list incoming requests")
}

func (s *FriendshipsStore) ListOutgoing(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	q := friendRequestSelect + `
		WHERE fr.from_id = $1 AND fr.status = 'pending'
		ORDER BY fr.created_at DESC
	`
	return s.listRequests(ctx, q, userID, "list outgoing requests")
}

func (s *FriendshipsStore) listRequests(ctx context.Context, q, userID, op string) ([]domain.FriendRequest, error) {
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := []domain.FriendRequest{}
	for rows.Next() {
		fr, err := scanFriendRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}
		out = append(out, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
