package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/entities"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTripData(tripID string) models.TripData {
	return models.TripData{
		Locations:      []models.Location{{ID: tripID + "-l1", TripID: tripID, Name: "Old Town", Latitude: ptr(56.95), Longitude: ptr(24.11)}},
		Activities:     []models.Activity{{ID: tripID + "-a1", TripID: tripID, Title: "Walking tour"}},
		Transportation: []models.Transportation{{ID: tripID + "-tr1", TripID: tripID, Mode: "train", From: "Riga", To: "Sigulda"}},
		Lodging:        []models.Lodging{{ID: tripID + "-lo1", TripID: tripID, Name: "Hotel"}},
		Journals:       []models.JournalEntry{{ID: tripID + "-j1", TripID: tripID, Title: "Day 1", Body: "rain"}},
		Photos:         []models.Photo{{ID: tripID + "-p1", TripID: tripID, URL: "https://img/p1.jpg"}},
		Albums:         []models.PhotoAlbum{{ID: tripID + "-al1", TripID: tripID, Title: "Best", PhotoIDs: []string{tripID + "-p1"}}},
	}
}

func newTestEntityStore(t *testing.T) (*entityStore, entities.Repository) {
	t.Helper()
	db := setupStore(t)
	s := NewEntityStore(db, logging.Nop()).(*entityStore)
	return s, entities.NewSQLiteRepository(db)
}

func TestEntityStore_ReadAfterWrite(t *testing.T) {
	s, _ := newTestEntityStore(t)
	ctx := context.Background()

	require.NoError(t, s.CacheTrip(ctx, models.Trip{ID: "t1", Title: "Riga"}))
	got, err := s.GetCachedTrip(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Riga", got.Title)

	require.NoError(t, s.CacheTrip(ctx, models.Trip{ID: "t1", Title: "Riga & Jurmala"}))
	got, err = s.GetCachedTrip(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Riga & Jurmala", got.Title)
}

func TestEntityStore_MissingDataIsNil(t *testing.T) {
	s, _ := newTestEntityStore(t)
	ctx := context.Background()

	trip, err := s.GetCachedTrip(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, trip)

	data, err := s.GetCachedTripData(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, data)

	// marking an uncached trip is not an error
	require.NoError(t, s.MarkTripForOffline(ctx, "nope"))
	require.NoError(t, s.UnmarkTripForOffline(ctx, "nope"))
}

func TestEntityStore_MarkPhotoBlobsNeedsCachedPhoto(t *testing.T) {
	s, _ := newTestEntityStore(t)
	err := s.MarkPhotoBlobs(context.Background(), "ghost", ptr(true), nil)
	require.ErrorIs(t, err, common.ErrInvalidEntity)
}

func TestEntityStore_RecacheKeepsFlagsAndBumpsVersion(t *testing.T) {
	s, repo := newTestEntityStore(t)
	ctx := context.Background()

	require.NoError(t, s.CacheTrip(ctx, models.Trip{ID: "t1", Title: "A"}))
	require.NoError(t, s.MarkTripForOffline(ctx, "t1"))
	require.NoError(t, s.CachePhoto(ctx, "t1", models.Photo{ID: "p1", TripID: "t1"}))
	require.NoError(t, s.MarkPhotoBlobs(ctx, "p1", ptr(true), nil))

	require.NoError(t, s.CacheTrip(ctx, models.Trip{ID: "t1", Title: "B"}))
	require.NoError(t, s.CachePhoto(ctx, "t1", models.Photo{ID: "p1", TripID: "t1", Caption: "new"}))

	trip, err := repo.Get(ctx, models.KindTrip, "t1")
	require.NoError(t, err)
	assert.True(t, trip.DownloadedForOffline)
	assert.Equal(t, int64(2), trip.Version)

	photo, err := repo.Get(ctx, models.KindPhoto, "p1")
	require.NoError(t, err)
	assert.True(t, photo.ThumbnailCached)
	assert.False(t, photo.FullCached)
	assert.Equal(t, int64(2), photo.Version)

	require.NoError(t, s.UnmarkTripForOffline(ctx, "t1"))
	trip, err = repo.Get(ctx, models.KindTrip, "t1")
	require.NoError(t, err)
	assert.False(t, trip.DownloadedForOffline)
}

func TestEntityStore_CacheTripEntitiesAndRead(t *testing.T) {
	s, _ := newTestEntityStore(t)
	ctx := context.Background()

	require.NoError(t, s.CacheTrip(ctx, models.Trip{ID: "t1"}))
	want := sampleTripData("t1")
	require.NoError(t, s.CacheTripEntities(ctx, "t1", want))

	got, err := s.GetCachedTripData(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}

func TestEntityStore_CacheTripEntitiesIsAllOrNothing(t *testing.T) {
	s, _ := newTestEntityStore(t)
	ctx := context.Background()

	data := sampleTripData("t1")
	data.Albums = append(data.Albums, models.PhotoAlbum{ID: "", Title: "broken"})

	require.Error(t, s.CacheTripEntities(ctx, "t1", data))

	got, err := s.GetCachedTripData(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, got, "nothing from a failed batch may be visible")
}

func TestEntityStore_RejectsOrphanSubEntities(t *testing.T) {
	s, repo := newTestEntityStore(t)
	ctx := context.Background()

	err := s.CacheLocation(ctx, "", models.Location{ID: "orphan", Name: "nowhere"})
	require.ErrorIs(t, err, common.ErrInvalidTrip)

	rec, err := repo.Get(ctx, models.KindLocation, "orphan")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.ErrorIs(t, s.CacheTripEntities(ctx, "", sampleTripData("t1")), common.ErrInvalidTrip)
	list, err := repo.ListByTrip(ctx, models.KindActivity, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEntityStore_CacheTripEntitiesRollsBackOnStoreError(t *testing.T) {
	s, _ := newTestEntityStore(t)
	ctx := context.Background()

	// the photos table going away makes the upserts fail half way through
	_, err := s.db.ExecContext(ctx, `DROP TABLE photos`)
	require.NoError(t, err)

	require.Error(t, s.CacheTripEntities(ctx, "t1", sampleTripData("t1")))

	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM locations`).Scan(&n))
	assert.Zero(t, n)
}

func TestEntityStore_ClearTripCacheCascades(t *testing.T) {
	s, repo := newTestEntityStore(t)
	ctx := context.Background()

	for _, id := range []string{"t1", "t2"} {
		require.NoError(t, s.CacheTrip(ctx, models.Trip{ID: id}))
		require.NoError(t, s.CacheTripEntities(ctx, id, sampleTripData(id)))
	}
	require.NoError(t, s.ClearTripCache(ctx, "t1"))

	trip, err := s.GetCachedTrip(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, trip)

	data, err := s.GetCachedTripData(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, data)

	for _, kind := range models.SubEntityKinds {
		recs, err := repo.ListByTrip(ctx, kind, "t1")
		require.NoError(t, err)
		assert.Empty(t, recs, kind)
	}

	other, err := s.GetCachedTrip(ctx, "t2")
	require.NoError(t, err)
	assert.NotNil(t, other)
	acts, err := repo.ListByTrip(ctx, models.KindActivity, "t2")
	require.NoError(t, err)
	assert.NotEmpty(t, acts)
}

func TestEntityStore_ClearAllCache(t *testing.T) {
	s, repo := newTestEntityStore(t)
	ctx := context.Background()

	require.NoError(t, s.CacheTrip(ctx, models.Trip{ID: "t1"}))
	require.NoError(t, s.CacheTripEntities(ctx, "t1", sampleTripData("t1")))
	require.NoError(t, s.ClearAllCache(ctx))

	for _, kind := range models.AllKinds {
		recs, err := repo.ListAll(ctx, kind)
		require.NoError(t, err)
		assert.Empty(t, recs, kind)
	}

	trips, err := s.ListCachedTrips(ctx)
	require.NoError(t, err)
	assert.Empty(t, trips)
}
