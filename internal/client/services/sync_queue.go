package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/syncqueue"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/dbx"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
)

// SyncQueue is the durable FIFO of mutations waiting for the server.
// Pending changes are always returned in enqueue order. Retry limits and
// backoff belong to the synchronizer, not to the queue.
type SyncQueue interface {
	// QueueChange appends op with the current time and a zero retry count.
	QueueChange(ctx context.Context, op models.SyncOperation) (int64, error)

	GetPendingChanges(ctx context.Context) ([]models.SyncOperation, error)
	GetPendingChangesForTrip(ctx context.Context, tripID string) ([]models.SyncOperation, error)
	GetPendingChangeCount(ctx context.Context) (int, error)

	RemoveSyncedChange(ctx context.Context, id int64) error

	// IncrementRetryCount returns the new count, or 0 when id is not queued.
	IncrementRetryCount(ctx context.Context, id int64) (int, error)

	// ClearSyncQueue drops every pending change, including unsynced edits.
	ClearSyncQueue(ctx context.Context) error
}

type syncQueue struct {
	mu  sync.Mutex
	db  *sql.DB
	log logging.Logger
	now func() time.Time
}

// NewSyncQueue returns a SyncQueue stored in db.
func NewSyncQueue(db *sql.DB, log logging.Logger) SyncQueue {
	return &syncQueue{db: db, log: log.With("module", "sync_queue"), now: time.Now}
}

func (q *syncQueue) repo(db dbx.DBTX) syncqueue.Repository {
	return syncqueue.NewSQLiteRepository(db)
}

func (q *syncQueue) QueueChange(ctx context.Context, op models.SyncOperation) (int64, error) {
	if !op.Type.Valid() {
		return 0, fmt.Errorf("%w: operation type %q", common.ErrInvalidEntity, op.Type)
	}
	if !op.EntityType.Valid() {
		return 0, fmt.Errorf("%w: entity type %q", common.ErrInvalidEntity, op.EntityType)
	}
	op.Timestamp = q.now()

	q.mu.Lock()
	defer q.mu.Unlock()

	id, err := q.repo(q.db).Append(ctx, op)
	if err != nil {
		return 0, err
	}
	q.refreshDepth(ctx)

	q.log.Info(ctx, "change queued", "id", id, "type", op.Type, "entity_type", op.EntityType, "trip_id", op.TripID)
	return id, nil
}

func (q *syncQueue) GetPendingChanges(ctx context.Context) ([]models.SyncOperation, error) {
	return q.repo(q.db).List(ctx)
}

func (q *syncQueue) GetPendingChangesForTrip(ctx context.Context, tripID string) ([]models.SyncOperation, error) {
	return q.repo(q.db).ListByTrip(ctx, tripID)
}

func (q *syncQueue) GetPendingChangeCount(ctx context.Context) (int, error) {
	return q.repo(q.db).Count(ctx)
}

func (q *syncQueue) RemoveSyncedChange(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.repo(q.db).Remove(ctx, id); err != nil {
		return err
	}
	q.refreshDepth(ctx)
	return nil
}

func (q *syncQueue) IncrementRetryCount(ctx context.Context, id int64) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	type result struct {
		count int
		ok    bool
	}
	res, err := dbx.InTx(ctx, q.db, func(ctx context.Context, tx dbx.DBTX) (result, error) {
		n, ok, err := q.repo(tx).IncrementRetry(ctx, id)
		return result{count: n, ok: ok}, err
	})
	if err != nil {
		return 0, fmt.Errorf("increment retry of %d: %w", id, err)
	}
	if !res.ok {
		q.log.Warn(ctx, "retry increment for unknown operation", "id", id)
		return 0, nil
	}

	queueRetries.Inc()
	return res.count, nil
}

func (q *syncQueue) ClearSyncQueue(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.repo(q.db).Clear(ctx); err != nil {
		return err
	}
	q.refreshDepth(ctx)
	q.log.Warn(ctx, "sync queue cleared")
	return nil
}

func (q *syncQueue) refreshDepth(ctx context.Context) {
	n, err := q.repo(q.db).Count(ctx)
	if err != nil {
		q.log.Debug(ctx, "queue depth unavailable", "error", err)
		return
	}
	queueDepth.Set(float64(n))
}
