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

type RemindersStore struct {
	pool *pgxpool.Pool
}

func NewRemindersStore(pool *pgxpool.Pool) *RemindersStore {
	return &RemindersStore{pool: pool}
}

const reminderColumns = `id, user_id, movie_id, title, poster_ref, release_date, trigger_date, channel, status, notes, created_at, updated_at, sent_at`

func scanReminder(row pgx.Row) (domain.Reminder, error) {
	var (
		r        domain.Reminder
		idUUID   pgtype.UUID
		userUUID pgtype.UUID
		poster   pgtype.Text
		release  pgtype.Timestamptz
		channel  string
		status   string
		notes    pgtype.Text
		sent     pgtype.Timestamptz
	)
	err := row.Scan(
		&idUUID,
		&userUUID,
		&r.MovieID,
		&r.Title,
		&poster,
		&release,
		&r.TriggerDate,
		&channel,
		&status,
		&notes,
		&r.CreatedAt,
		&r.UpdatedAt,
		&sent,
	)
	if err != nil {
		return domain.Reminder{}, err
	}
	r.ID = uuidOrEmpty(idUUID)
	r.UserID = uuidOrEmpty(userUUID)
	r.PosterRef = textOrEmpty(poster)
	r.ReleaseDate = timestamptzPtr(release)
	r.Channel = domain.ReminderChannel(channel)
	r.Status = domain.ReminderStatus(status)
	r.Notes = textOrEmpty(notes)
	r.SentAt = timestamptzPtr(sent)
	return r, nil
}

func collectReminders(rows pgx.Rows, op string) ([]domain.Reminder, error) {
	defer rows.Close()

	out := []domain.Reminder{}
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *RemindersStore) CreateReminder(ctx context.Context, userID string, in domain.NewReminder, when time.Time) (domain.Reminder, error) {
	const q = `
		INSERT INTO reminders (user_id, movie_id, title, poster_ref, release_date, trigger_date, channel, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'active', $8, $9, $9)
		RETURNING ` + reminderColumns

	r, err := scanReminder(s.pool.QueryRow(ctx, q,
		userID,
		in.MovieID,
		in.Title,
		nullIfEmpty(in.PosterRef),
		in.ReleaseDate,
		in.TriggerDate,
		string(in.Channel),
		nullIfEmpty(in.Notes),
		when,
	))
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "reminders_active_uq" {
			return domain.Reminder{}, domain.ErrConflict
		}
		return domain.Reminder{}, fmt.Errorf("create reminder: %w", err)
	}
	return r, nil
}

func (s *RemindersStore) GetReminder(ctx context.Context, userID, id string) (domain.Reminder, error) {
	if !validUUID(id) {
		return domain.Reminder{}, domain.ErrNotFound
	}
	const q = `SELECT ` + reminderColumns + ` FROM reminders WHERE id = $1 AND user_id = $2`

	r, err := scanReminder(s.pool.QueryRow(ctx, q, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Reminder{}, domain.ErrNotFound
		}
		return domain.Reminder{}, fmt.Errorf("get reminder: %w", err)
	}
	return r, nil
}

// GetReminderByID loads a reminder without an owner check, for delivery.
func (s *RemindersStore) GetReminderByID(ctx context.Context, id string) (domain.Reminder, error) {
	if !validUUID(id) {
		return domain.Reminder{}, domain.ErrNotFound
	}
	const q = `SELECT ` + reminderColumns + ` FROM reminders WHERE id = $1`

	r, err := scanReminder(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Reminder{}, domain.ErrNotFound
		}
		return domain.Reminder{}, fmt.Errorf("get reminder by id: %w", err)
	}
	return r, nil
}

func (s *RemindersStore) HasActiveReminder(ctx context.Context, userID, movieID string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM reminders
			WHERE user_id = $1 AND movie_id = $2 AND status = 'active'
		)
	`

	var exists bool
	if err := s.pool.QueryRow(ctx, q, userID, movieID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check active reminder: %w", err)
	}
	return exists, nil
}

func (s *RemindersStore) ListReminders(ctx context.Context, userID string, status domain.ReminderStatus) ([]domain.Reminder, error) {
	const q = `
		SELECT ` + reminderColumns + `
		FROM reminders
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY trigger_date ASC, created_at ASC
	`

	rows, err := s.pool.Query(ctx, q, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return collectReminders(rows, "list reminders")
}

func (s *RemindersStore) ListUpcoming(ctx context.Context, userID string, from, to time.Time) ([]domain.Reminder, error) {
	const q = `
		SELECT ` + reminderColumns + `
		FROM reminders
		WHERE user_id = $1 AND status = 'active' AND trigger_date >= $2 AND trigger_date <= $3
		ORDER BY trigger_date ASC
	`

	rows, err := s.pool.Query(ctx, q, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list upcoming reminders: %w", err)
	}
	return collectReminders(rows, "list upcoming reminders")
}

// UpdateReminder writes the patch only if the stored status still equals
// expected, so a concurrent transition is never overwritten.
func (s *RemindersStore) UpdateReminder(ctx context.Context, userID, id string, expected domain.ReminderStatus, patch domain.ReminderPatch, when time.Time) (domain.Reminder, error) {
	if !validUUID(id) {
		return domain.Reminder{}, domain.ErrNotFound
	}
	const q = `
		UPDATE reminders SET
			trigger_date = COALESCE($4, trigger_date),
			dispatched_at = CASE WHEN $4::timestamptz IS NULL THEN dispatched_at ELSE NULL END,
			channel      = COALESCE($5, channel),
			notes        = CASE WHEN $6::boolean THEN $7::text ELSE notes END,
			status       = COALESCE($8, status),
			updated_at   = $9
		WHERE id = $1 AND user_id = $2 AND status = $3
		RETURNING ` + reminderColumns

	var (
		channel any
		notes   any
		status  any
	)
	if patch.Channel != nil {
		channel = string(*patch.Channel)
	}
	if patch.Notes != nil {
		notes = nullIfEmpty(*patch.Notes)
	}
	if patch.Status != nil {
		status = string(*patch.Status)
	}

	r, err := scanReminder(s.pool.QueryRow(ctx, q,
		id,
		userID,
		string(expected),
		patch.TriggerDate,
		channel,
		patch.Notes != nil, notes,
		status,
		when,
	))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if constraint, ok := uniqueViolation(err); ok && constraint == "reminders_active_uq" {
			return domain.Reminder{}, domain.ErrConflict
		}
		return domain.Reminder{}, fmt.Errorf("update reminder: %w", err)
	}

	if _, getErr := s.GetReminder(ctx, userID, id); getErr != nil {
		return domain.Reminder{}, getErr
	}
	return domain.Reminder{}, domain.ErrInvalidTransition
}

func (s *RemindersStore) DeleteReminder(ctx context.Context, userID, id string) error {
	if !validUUID(id) {
		return domain.ErrNotFound
	}
	const q = `DELETE FROM reminders WHERE id = $1 AND user_id = $2`

	ct, err := s.pool.Exec(ctx, q, id, userID)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClaimDue returns active reminders whose trigger date has passed and stamps
// them as dispatched. A reminder already claimed within lease is skipped, so
// overlapping scheduler runs do not queue it twice.
func (s *RemindersStore) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.Reminder, error) {
	const q = `
		UPDATE reminders SET dispatched_at = $1
		WHERE id IN (
			SELECT id FROM reminders
			WHERE status = 'active'
			  AND trigger_date <= $1
			  AND (dispatched_at IS NULL OR dispatched_at <= $2)
			ORDER BY trigger_date ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + reminderColumns

	rows, err := s.pool.Query(ctx, q, now, now.Add(-lease), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due reminders: %w", err)
	}
	return collectReminders(rows, "claim due reminders")
}

// MarkSent moves an active reminder to sent. It reports false when the
// reminder was no longer active.
func (s *RemindersStore) MarkSent(ctx context.Context, id string, when time.Time) (bool, error) {
	if !validUUID(id) {
		return false, domain.ErrNotFound
	}
	const q = `
		UPDATE reminders
		SET status = 'sent', sent_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'active'
	`

	ct, err := s.pool.Exec(ctx, q, id, when)
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
