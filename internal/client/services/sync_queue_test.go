package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*syncQueue, *clock) {
	t.Helper()
	c := newClock()
	q := NewSyncQueue(setupStore(t), logging.Nop()).(*syncQueue)
	q.now = c.Now
	return q, c
}

func op(typ models.OperationType, kind models.EntityKind, entityID, tripID string) models.SyncOperation {
	return models.SyncOperation{
		Type:       typ,
		EntityType: kind,
		EntityID:   entityID,
		TripID:     tripID,
		Payload:    json.RawMessage(`{"id":"` + entityID + `"}`),
		RetryCount: 7,
	}
}

func TestSyncQueue_FIFOAcrossEntityTypes(t *testing.T) {
	q, c := newTestQueue(t)
	ctx := context.Background()

	a, err := q.QueueChange(ctx, op(models.OpCreate, models.KindPhoto, "p1", "t1"))
	require.NoError(t, err)
	c.Advance(time.Second)
	b, err := q.QueueChange(ctx, op(models.OpUpdate, models.KindActivity, "a1", "t1"))
	require.NoError(t, err)
	c.Advance(time.Second)
	cc, err := q.QueueChange(ctx, op(models.OpDelete, models.KindLocation, "l1", "t2"))
	require.NoError(t, err)

	pending, err := q.GetPendingChanges(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, []int64{a, b, cc}, []int64{pending[0].ID, pending[1].ID, pending[2].ID})
	assert.Less(t, a, b)
	assert.Less(t, b, cc)

	assert.Equal(t, 0, pending[0].RetryCount, "retry count always starts at zero")
	assert.Equal(t, c.Now().Add(-2*time.Second).UnixMilli(), pending[0].Timestamp.UnixMilli())

	forTrip, err := q.GetPendingChangesForTrip(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, forTrip, 2)
	assert.Equal(t, a, forTrip[0].ID)

	n, err := q.GetPendingChangeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSyncQueue_CreateThenDeleteAreNotCollapsed(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.QueueChange(ctx, op(models.OpCreate, models.KindActivity, "local-1", "t1"))
	require.NoError(t, err)
	_, err = q.QueueChange(ctx, op(models.OpDelete, models.KindActivity, "local-1", "t1"))
	require.NoError(t, err)

	pending, err := q.GetPendingChanges(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, models.OpCreate, pending[0].Type)
	assert.Equal(t, models.OpDelete, pending[1].Type)
}

func TestSyncQueue_RejectsUnknownTypes(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.QueueChange(ctx, op("upsert", models.KindTrip, "t1", ""))
	assert.ErrorIs(t, err, common.ErrInvalidEntity)

	_, err = q.QueueChange(ctx, op(models.OpCreate, "comment", "c1", "t1"))
	assert.ErrorIs(t, err, common.ErrInvalidEntity)
}

func TestSyncQueue_RemoveAndIncrement(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, err := q.QueueChange(ctx, op(models.OpUpdate, models.KindTrip, "t1", ""))
	require.NoError(t, err)

	for want := 1; want <= 3; want++ {
		n, err := q.IncrementRetryCount(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	n, err := q.IncrementRetryCount(ctx, id+100)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, q.RemoveSyncedChange(ctx, id))
	count, err := q.GetPendingChangeCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSyncQueue_ConcurrentIncrementsAreNotLost(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, err := q.QueueChange(ctx, op(models.OpUpdate, models.KindTrip, "t1", ""))
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.IncrementRetryCount(ctx, id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	pending, err := q.GetPendingChanges(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, workers, pending[0].RetryCount)
}

func TestSyncQueue_ConcurrentEnqueueKeepsEveryOperation(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.QueueChange(ctx, op(models.OpCreate, models.KindJournal, "j", "t1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	pending, err := q.GetPendingChanges(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 10)
	for i := 1; i < len(pending); i++ {
		assert.Less(t, pending[i-1].ID, pending[i].ID)
		assert.JSONEq(t, `{"id":"j"}`, string(pending[i].Payload))
	}
}

func TestSyncQueue_Clear(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := q.QueueChange(ctx, op(models.OpCreate, models.KindLodging, "x", "t1"))
		require.NoError(t, err)
	}
	require.NoError(t, q.ClearSyncQueue(ctx))

	pending, err := q.GetPendingChanges(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.NotNil(t, pending)
}
