package entities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/dbx"
	"github.com/dmitrijs2005/tripkeeper/internal/timex"
)

var tables = map[models.EntityKind]string{
	models.KindTrip:           "trips",
	models.KindLocation:       "locations",
	models.KindActivity:       "activities",
	models.KindTransportation: "transportation",
	models.KindLodging:        "lodging",
	models.KindJournal:        "journals",
	models.KindPhoto:          "photos",
	models.KindPhotoAlbum:     "photo_albums",
}

const columns = `id, trip_id, payload, last_synced_at, version, downloaded_for_offline, thumbnail_cached, full_cached`

// ErrUnknownKind is returned for a kind without a table.
var ErrUnknownKind = errors.New("unknown entity kind")

// TableName returns the table backing kind.
func TableName(kind models.EntityKind) (string, error) {
	t, ok := tables[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return t, nil
}

var _ Repository = (*SQLiteRepository)(nil)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, rec models.CachedEntity) (int64, error) {
	table, err := TableName(rec.Kind)
	if err != nil {
		return 0, err
	}
	if rec.ID == "" {
		return 0, fmt.Errorf("upsert %s: empty id", rec.Kind)
	}

	// flags of an existing row are left untouched
	query := `INSERT INTO ` + table + ` (` + columns + `)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			trip_id = excluded.trip_id,
			payload = excluded.payload,
			last_synced_at = excluded.last_synced_at,
			version = ` + table + `.version + 1
		RETURNING version`

	var version int64
	err = r.db.QueryRowContext(ctx, query,
		rec.ID, rec.TripID, []byte(rec.Payload), timex.ToUnixMilli(rec.LastSyncedAt),
		rec.DownloadedForOffline, rec.ThumbnailCached, rec.FullCached,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert %s %s: %w", rec.Kind, rec.ID, err)
	}
	return version, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, kind models.EntityKind, id string) (*models.CachedEntity, error) {
	table, err := TableName(kind)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM `+table+` WHERE id = ?`, id)
	rec, err := scan(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", kind, id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) ListByTrip(ctx context.Context, kind models.EntityKind, tripID string) ([]models.CachedEntity, error) {
	table, err := TableName(kind)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, kind, `SELECT `+columns+` FROM `+table+` WHERE trip_id = ? ORDER BY id`, tripID)
}

func (r *SQLiteRepository) ListAll(ctx context.Context, kind models.EntityKind) ([]models.CachedEntity, error) {
	table, err := TableName(kind)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, kind, `SELECT `+columns+` FROM `+table+` ORDER BY id`)
}

func (r *SQLiteRepository) list(ctx context.Context, kind models.EntityKind, query string, args ...any) ([]models.CachedEntity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", kind, err)
	}
	defer rows.Close()

	var result []models.CachedEntity
	for rows.Next() {
		rec, err := scan(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, kind models.EntityKind, id string) error {
	table, err := TableName(kind)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", kind, id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByTrip(ctx context.Context, kind models.EntityKind, tripID string) (int64, error) {
	table, err := TableName(kind)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE trip_id = ?`, tripID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s of trip %s: %w", kind, tripID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context, kind models.EntityKind) error {
	table, err := TableName(kind)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return fmt.Errorf("failed to clear %s: %w", kind, err)
	}
	return nil
}

func (r *SQLiteRepository) SetDownloaded(ctx context.Context, tripID string, downloaded bool) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE trips SET downloaded_for_offline = ? WHERE id = ?`, downloaded, tripID)
	if err != nil {
		return false, fmt.Errorf("failed to mark trip %s: %w", tripID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) SetPhotoFlags(ctx context.Context, photoID string, thumbnail, full *bool) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE photos SET
			thumbnail_cached = COALESCE(?, thumbnail_cached),
			full_cached = COALESCE(?, full_cached)
		WHERE id = ?`, nullBool(thumbnail), nullBool(full), photoID)
	if err != nil {
		return false, fmt.Errorf("failed to flag photo %s: %w", photoID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) ResetPhotoFlags(ctx context.Context, thumbnail, full bool) error {
	if !thumbnail && !full {
		return nil
	}
	query := `UPDATE photos SET thumbnail_cached = 0, full_cached = 0`
	switch {
	case thumbnail && !full:
		query = `UPDATE photos SET thumbnail_cached = 0`
	case full && !thumbnail:
		query = `UPDATE photos SET full_cached = 0`
	}
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to reset photo flags: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) PayloadSize(ctx context.Context, kind models.EntityKind, tripID string) (int64, error) {
	table, err := TableName(kind)
	if err != nil {
		return 0, err
	}

	query := `SELECT COALESCE(SUM(LENGTH(payload)), 0) FROM ` + table
	var args []any
	if tripID != "" {
		if kind == models.KindTrip {
			query += ` WHERE id = ?`
		} else {
			query += ` WHERE trip_id = ?`
		}
		args = append(args, tripID)
	}

	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to size %s: %w", kind, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner, kind models.EntityKind) (*models.CachedEntity, error) {
	var (
		rec      models.CachedEntity
		payload  []byte
		syncedAt int64
	)
	err := s.Scan(&rec.ID, &rec.TripID, &payload, &syncedAt, &rec.Version,
		&rec.DownloadedForOffline, &rec.ThumbnailCached, &rec.FullCached)
	if err != nil {
		return nil, err
	}
	rec.Kind = kind
	rec.Payload = payload
	rec.LastSyncedAt = timex.UnixMilli(syncedAt)
	return &rec, nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
