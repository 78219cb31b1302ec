package syncqueue

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

const columns = `id, type, entity_type, entity_id, trip_id, payload, timestamp, retry_count`

// rowSize approximates a row as payload plus the text columns.
const rowSize = `COALESCE(LENGTH(payload), 0) + LENGTH(type) + LENGTH(entity_type) + LENGTH(entity_id) + LENGTH(trip_id) + 24`

var _ Repository = (*SQLiteRepository)(nil)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Append(ctx context.Context, op models.SyncOperation) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO sync_queue (type, entity_type, entity_id, trip_id, payload, timestamp, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		RETURNING id`,
		string(op.Type), string(op.EntityType), op.EntityID, op.TripID, []byte(op.Payload),
		timex.ToUnixMilli(op.Timestamp),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to append sync operation: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.SyncOperation, error) {
	return r.list(ctx, `SELECT `+columns+` FROM sync_queue ORDER BY id`)
}

func (r *SQLiteRepository) ListByTrip(ctx context.Context, tripID string) ([]models.SyncOperation, error) {
	return r.list(ctx, `SELECT `+columns+` FROM sync_queue WHERE trip_id = ? ORDER BY id`, tripID)
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]models.SyncOperation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select sync operations: %w", err)
	}
	defer rows.Close()

	result := []models.SyncOperation{}
	for rows.Next() {
		var (
			op                 models.SyncOperation
			opType, entityType string
			payload            []byte
			ts                 int64
		)
		if err := rows.Scan(&op.ID, &opType, &entityType, &op.EntityID, &op.TripID, &payload, &ts, &op.RetryCount); err != nil {
			return nil, fmt.Errorf("failed to scan sync operation: %w", err)
		}
		op.Type = models.OperationType(opType)
		op.EntityType = models.EntityKind(entityType)
		op.Payload = payload
		op.Timestamp = timex.UnixMilli(ts)
		result = append(result, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sync operations: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove sync operation %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) IncrementRetry(ctx context.Context, id int64) (int, bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`UPDATE sync_queue SET retry_count = retry_count + 1 WHERE id = ? RETURNING retry_count`, id,
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment retry of %d: %w", id, err)
	}
	return n, true, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue`); err != nil {
		return fmt.Errorf("failed to clear sync queue: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByTrip(ctx context.Context, tripID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE trip_id = ?`, tripID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sync operations of trip %s: %w", tripID, err)
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
		`SELECT COUNT(*), COALESCE(SUM(`+rowSize+`), 0) FROM sync_queue WHERE timestamp < ?`,
		cutoff.UnixMilli(),
	).Scan(&rows, &bytes)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to size old sync operations: %w", err)
	}
	if rows == 0 {
		return 0, 0, nil
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE timestamp < ?`, cutoff.UnixMilli()); err != nil {
		return 0, 0, fmt.Errorf("failed to delete old sync operations: %w", err)
	}
	return rows, bytes, nil
}

func (r *SQLiteRepository) Size(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(`+rowSize+`), 0) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to size sync queue: %w", err)
	}
	return n, nil
}
