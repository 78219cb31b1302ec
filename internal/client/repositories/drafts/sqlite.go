// Package drafts persists locally held entity versions: unsaved edits and
// queued changes the server superseded or refused.
package drafts

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
	Put(ctx context.Context, d models.Draft) error
	Get(ctx context.Context, id string) (*models.Draft, error)
	List(ctx context.Context) ([]models.Draft, error)
	ListByTrip(ctx context.Context, tripID string) ([]models.Draft, error)
	Delete(ctx context.Context, id string) error
	DeleteByTrip(ctx context.Context, tripID string) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (rows int64, bytes int64, err error)
	Clear(ctx context.Context) error
	Size(ctx context.Context) (int64, error)
}

const columns = `id, trip_id, entity_type, entity_id, payload, reason, detail, updated_at`

const rowSize = `COALESCE(LENGTH(payload), 0) + LENGTH(id) + LENGTH(trip_id) + LENGTH(entity_id) + LENGTH(detail) + 24`

var _ Repository = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Put(ctx context.Context, d models.Draft) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO drafts (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			trip_id = excluded.trip_id,
			entity_type = excluded.entity_type,
			entity_id = excluded.entity_id,
			payload = excluded.payload,
			reason = excluded.reason,
			detail = excluded.detail,
			updated_at = excluded.updated_at`,
		d.ID, d.TripID, string(d.EntityType), d.EntityID, []byte(d.Payload), string(d.Reason), d.Detail,
		timex.ToUnixMilli(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to put draft %s: %w", d.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Draft, error) {
	d, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM drafts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft %s: %w", id, err)
	}
	return d, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.Draft, error) {
	return r.list(ctx, `SELECT `+columns+` FROM drafts ORDER BY updated_at, id`)
}

func (r *SQLiteRepository) ListByTrip(ctx context.Context, tripID string) ([]models.Draft, error) {
	return r.list(ctx, `SELECT `+columns+` FROM drafts WHERE trip_id = ? ORDER BY updated_at, id`, tripID)
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]models.Draft, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var result []models.Draft
	for rows.Next() {
		d, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete draft %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByTrip(ctx context.Context, tripID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE trip_id = ?`, tripID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete drafts of trip %s: %w", tripID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	var rows, bytes int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(`+rowSize+`), 0) FROM drafts WHERE updated_at < ?`, cutoff.UnixMilli(),
	).Scan(&rows, &bytes)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to size old drafts: %w", err)
	}
	if rows == 0 {
		return 0, 0, nil
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE updated_at < ?`, cutoff.UnixMilli()); err != nil {
		return 0, 0, fmt.Errorf("failed to delete old drafts: %w", err)
	}
	return rows, bytes, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM drafts`); err != nil {
		return fmt.Errorf("failed to clear drafts: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Size(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(`+rowSize+`), 0) FROM drafts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to size drafts: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.Draft, error) {
	var (
		d                  models.Draft
		entityType, reason string
		payload            []byte
		updatedAt          int64
	)
	if err := s.Scan(&d.ID, &d.TripID, &entityType, &d.EntityID, &payload, &reason, &d.Detail, &updatedAt); err != nil {
		return nil, err
	}
	d.EntityType = models.EntityKind(entityType)
	d.Reason = models.DraftReason(reason)
	d.Payload = payload
	d.UpdatedAt = timex.UnixMilli(updatedAt)
	return &d, nil
}
