package entities

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.OpenStore(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func rec(kind models.EntityKind, id, tripID, payload string) models.CachedEntity {
	return models.CachedEntity{
		ID:           id,
		TripID:       tripID,
		Kind:         kind,
		Payload:      json.RawMessage(payload),
		LastSyncedAt: time.UnixMilli(1_700_000_000_000),
	}
}

func TestUpsert_InsertThenUpdateIncrementsVersion(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	v, err := r.Upsert(ctx, rec(models.KindActivity, "a1", "t1", `{"title":"hike"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = r.Upsert(ctx, rec(models.KindActivity, "a1", "t1", `{"title":"long hike"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	got, err := r.Get(ctx, models.KindActivity, "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"title":"long hike"}`, string(got.Payload))
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "t1", got.TripID)
	assert.Equal(t, models.KindActivity, got.Kind)
	assert.Equal(t, int64(1_700_000_000_000), got.LastSyncedAt.UnixMilli())
}

func TestUpsert_PreservesFlags(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, err := r.Upsert(ctx, rec(models.KindTrip, "t1", "", `{"id":"t1"}`))
	require.NoError(t, err)
	ok, err := r.SetDownloaded(ctx, "t1", true)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = r.Upsert(ctx, rec(models.KindPhoto, "p1", "t1", `{"id":"p1"}`))
	require.NoError(t, err)
	yes := true
	_, err = r.SetPhotoFlags(ctx, "p1", &yes, nil)
	require.NoError(t, err)

	// re-cache with zero flags in the record
	_, err = r.Upsert(ctx, rec(models.KindTrip, "t1", "", `{"id":"t1","title":"x"}`))
	require.NoError(t, err)
	_, err = r.Upsert(ctx, rec(models.KindPhoto, "p1", "t1", `{"id":"p1","caption":"c"}`))
	require.NoError(t, err)

	trip, err := r.Get(ctx, models.KindTrip, "t1")
	require.NoError(t, err)
	assert.True(t, trip.DownloadedForOffline)

	photo, err := r.Get(ctx, models.KindPhoto, "p1")
	require.NoError(t, err)
	assert.True(t, photo.ThumbnailCached)
	assert.False(t, photo.FullCached)
}

func TestGet_Missing_ReturnsNilNil(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	got, err := r.Get(context.Background(), models.KindLodging, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUnknownKind(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	_, err := r.Get(context.Background(), models.EntityKind("itinerary"), "x")
	require.ErrorIs(t, err, ErrUnknownKind)
	_, err = r.Upsert(context.Background(), rec("itinerary", "x", "", `{}`))
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestListByTrip_AndDeleteByTrip(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	for _, x := range []models.CachedEntity{
		rec(models.KindLocation, "l2", "t1", `{}`),
		rec(models.KindLocation, "l1", "t1", `{}`),
		rec(models.KindLocation, "l3", "t2", `{}`),
	} {
		_, err := r.Upsert(ctx, x)
		require.NoError(t, err)
	}

	got, err := r.ListByTrip(ctx, models.KindLocation, "t1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "l1", got[0].ID)
	assert.Equal(t, "l2", got[1].ID)

	n, err := r.DeleteByTrip(ctx, models.KindLocation, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := r.ListAll(ctx, models.KindLocation)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "t2", all[0].TripID)
}

func TestSetDownloaded_MissingTripIsNoop(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	ok, err := r.SetDownloaded(context.Background(), "ghost", true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResetPhotoFlags(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, err := r.Upsert(ctx, rec(models.KindPhoto, "p1", "t1", `{}`))
	require.NoError(t, err)
	yes := true
	_, err = r.SetPhotoFlags(ctx, "p1", &yes, &yes)
	require.NoError(t, err)

	require.NoError(t, r.ResetPhotoFlags(ctx, true, false))
	p, err := r.Get(ctx, models.KindPhoto, "p1")
	require.NoError(t, err)
	assert.False(t, p.ThumbnailCached)
	assert.True(t, p.FullCached)

	require.NoError(t, r.ResetPhotoFlags(ctx, false, true))
	p, err = r.Get(ctx, models.KindPhoto, "p1")
	require.NoError(t, err)
	assert.False(t, p.FullCached)
}

func TestPayloadSize(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, err := r.Upsert(ctx, rec(models.KindTrip, "t1", "", `{"a":1}`))
	require.NoError(t, err)
	_, err = r.Upsert(ctx, rec(models.KindJournal, "j1", "t1", `12345`))
	require.NoError(t, err)
	_, err = r.Upsert(ctx, rec(models.KindJournal, "j2", "t2", `123`))
	require.NoError(t, err)

	n, err := r.PayloadSize(ctx, models.KindJournal, "")
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	n, err = r.PayloadSize(ctx, models.KindJournal, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = r.PayloadSize(ctx, models.KindTrip, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestClearAndDelete(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, err := r.Upsert(ctx, rec(models.KindPhotoAlbum, "al1", "t1", `{}`))
	require.NoError(t, err)
	_, err = r.Upsert(ctx, rec(models.KindPhotoAlbum, "al2", "t1", `{}`))
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, models.KindPhotoAlbum, "al1"))
	all, err := r.ListAll(ctx, models.KindPhotoAlbum)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, r.Clear(ctx, models.KindPhotoAlbum))
	all, err = r.ListAll(ctx, models.KindPhotoAlbum)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTableName_CoversAllKinds(t *testing.T) {
	for _, k := range models.AllKinds {
		_, err := TableName(k)
		assert.NoError(t, err, k)
	}
}
