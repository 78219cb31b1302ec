// Package sessions persists the singleton offline session.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/dbx"
	"github.com/dmitrijs2005/tripkeeper/internal/timex"
)

type Repository interface {
	// Save creates or replaces the session row with id s.ID.
	Save(ctx context.Context, s *models.OfflineSession) error
	// Get returns (nil, nil) when there is no session.
	Get(ctx context.Context, id string) (*models.OfflineSession, error)
	Delete(ctx context.Context, id string) error
	// SetExpiry updates expires_at and reports whether the row exists.
	SetExpiry(ctx context.Context, id string, expiresAt time.Time) (bool, error)
	Size(ctx context.Context) (int64, error)
}

var _ Repository = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, s *models.OfflineSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO offline_session (id, user_id, username, email, timezone, session_token, nonce, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			username = excluded.username,
			email = excluded.email,
			timezone = excluded.timezone,
			session_token = excluded.session_token,
			nonce = excluded.nonce,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		s.ID, s.UserID, s.Username, s.Email, s.Timezone, s.SessionToken, s.Nonce,
		timex.ToUnixMilli(s.CreatedAt), timex.ToUnixMilli(s.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to save offline session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.OfflineSession, error) {
	var (
		s                    models.OfflineSession
		createdAt, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, username, email, timezone, session_token, nonce, created_at, expires_at
		FROM offline_session WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserID, &s.Username, &s.Email, &s.Timezone, &s.SessionToken, &s.Nonce, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get offline session: %w", err)
	}
	s.CreatedAt = timex.UnixMilli(createdAt)
	s.ExpiresAt = timex.UnixMilli(expiresAt)
	return &s, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM offline_session WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete offline session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SetExpiry(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE offline_session SET expires_at = ? WHERE id = ?`, timex.ToUnixMilli(expiresAt), id)
	if err != nil {
		return false, fmt.Errorf("failed to extend offline session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) Size(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(
		LENGTH(session_token) + LENGTH(nonce) + LENGTH(user_id) + LENGTH(username) + LENGTH(email) + LENGTH(timezone) + 16
	), 0) FROM offline_session`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to size offline session: %w", err)
	}
	return n, nil
}
