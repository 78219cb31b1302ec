// Package syncqueue persists pending mutations in enqueue order.
package syncqueue

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
)

// Repository is the durable FIFO of sync operations. Ids come from an
// AUTOINCREMENT column, so ordering by id is enqueue order.
type Repository interface {
	// Append stores op and returns its id. ID and RetryCount of op are ignored.
	Append(ctx context.Context, op models.SyncOperation) (int64, error)

	List(ctx context.Context) ([]models.SyncOperation, error)
	ListByTrip(ctx context.Context, tripID string) ([]models.SyncOperation, error)
	Count(ctx context.Context) (int, error)

	Remove(ctx context.Context, id int64) error

	// IncrementRetry bumps retry_count and returns the new value. ok is false
	// when no operation has that id.
	IncrementRetry(ctx context.Context, id int64) (count int, ok bool, err error)

	Clear(ctx context.Context) error
	DeleteByTrip(ctx context.Context, tripID string) (int64, error)

	// DeleteOlderThan removes operations enqueued before cutoff and returns
	// how many rows and payload bytes were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (rows int64, bytes int64, err error)

	// Size estimates the bytes held by the queue.
	Size(ctx context.Context) (int64, error)
}
