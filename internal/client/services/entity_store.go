package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/entities"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/dbx"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
)

// EntityStore is the offline read path for trips and their sub-entities.
//
// Re-caching an entity keeps its offline and blob residency flags and bumps
// its version. Reads for data that was never cached return nil without an
// error.
type EntityStore interface {
	CacheTrip(ctx context.Context, trip models.Trip) error
	CacheLocation(ctx context.Context, tripID string, v models.Location) error
	CacheActivity(ctx context.Context, tripID string, v models.Activity) error
	CacheTransportation(ctx context.Context, tripID string, v models.Transportation) error
	CacheLodging(ctx context.Context, tripID string, v models.Lodging) error
	CacheJournal(ctx context.Context, tripID string, v models.JournalEntry) error
	CachePhoto(ctx context.Context, tripID string, v models.Photo) error
	CachePhotoAlbum(ctx context.Context, tripID string, v models.PhotoAlbum) error

	// CacheTripEntities stores every entity of data in one transaction.
	CacheTripEntities(ctx context.Context, tripID string, data models.TripData) error

	GetCachedTrip(ctx context.Context, tripID string) (*models.Trip, error)
	GetCachedTripData(ctx context.Context, tripID string) (*models.TripData, error)
	ListCachedTrips(ctx context.Context) ([]models.CachedEntity, error)

	MarkTripForOffline(ctx context.Context, tripID string) error
	UnmarkTripForOffline(ctx context.Context, tripID string) error
	// MarkPhotoBlobs records whether a photo's thumbnail or full image is in
	// the blob cache; nil leaves a flag unchanged. The photo record must be
	// cached.
	MarkPhotoBlobs(ctx context.Context, photoID string, thumbnail, full *bool) error

	// ClearTripCache removes the trip record and every record owned by it.
	ClearTripCache(ctx context.Context, tripID string) error
	ClearAllCache(ctx context.Context) error
}

type entityStore struct {
	db  *sql.DB
	log logging.Logger
	now func() time.Time
}

// NewEntityStore returns an EntityStore over the local store db.
func NewEntityStore(db *sql.DB, log logging.Logger) EntityStore {
	return &entityStore{db: db, log: log.With("module", "entity_store"), now: time.Now}
}

func (s *entityStore) repo(db dbx.DBTX) entities.Repository {
	return entities.NewSQLiteRepository(db)
}

func (s *entityStore) cache(ctx context.Context, tripID string, e models.Entity) error {
	rec, err := models.NewCachedEntity(tripID, e)
	if err != nil {
		return err
	}
	rec.LastSyncedAt = s.now()

	version, err := s.repo(s.db).Upsert(ctx, rec)
	if err != nil {
		return err
	}
	s.log.Debug(ctx, "entity cached", "kind", rec.Kind, "id", rec.ID, "version", version)
	return nil
}

func (s *entityStore) CacheTrip(ctx context.Context, trip models.Trip) error {
	return s.cache(ctx, "", trip)
}

func (s *entityStore) CacheLocation(ctx context.Context, tripID string, v models.Location) error {
	return s.cache(ctx, tripID, v)
}

func (s *entityStore) CacheActivity(ctx context.Context, tripID string, v models.Activity) error {
	return s.cache(ctx, tripID, v)
}

func (s *entityStore) CacheTransportation(ctx context.Context, tripID string, v models.Transportation) error {
	return s.cache(ctx, tripID, v)
}

func (s *entityStore) CacheLodging(ctx context.Context, tripID string, v models.Lodging) error {
	return s.cache(ctx, tripID, v)
}

func (s *entityStore) CacheJournal(ctx context.Context, tripID string, v models.JournalEntry) error {
	return s.cache(ctx, tripID, v)
}

func (s *entityStore) CachePhoto(ctx context.Context, tripID string, v models.Photo) error {
	return s.cache(ctx, tripID, v)
}

func (s *entityStore) CachePhotoAlbum(ctx context.Context, tripID string, v models.PhotoAlbum) error {
	return s.cache(ctx, tripID, v)
}

func (s *entityStore) CacheTripEntities(ctx context.Context, tripID string, data models.TripData) error {
	list := data.Entities()
	recs := make([]models.CachedEntity, 0, len(list))
	now := s.now()
	for _, e := range list {
		rec, err := models.NewCachedEntity(tripID, e)
		if err != nil {
			return err
		}
		rec.LastSyncedAt = now
		recs = append(recs, rec)
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repo(tx)
		for _, rec := range recs {
			if _, err := repo.Upsert(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache entities of trip %s: %w", tripID, err)
	}

	s.log.Info(ctx, "trip entities cached", "trip_id", tripID, "count", len(recs))
	return nil
}

func (s *entityStore) GetCachedTrip(ctx context.Context, tripID string) (*models.Trip, error) {
	rec, err := s.repo(s.db).Get(ctx, models.KindTrip, tripID)
	if err != nil || rec == nil {
		return nil, err
	}
	trip, err := models.Decode[models.Trip](*rec)
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

func (s *entityStore) GetCachedTripData(ctx context.Context, tripID string) (*models.TripData, error) {
	repo := s.repo(s.db)

	byKind := make(map[models.EntityKind][]models.CachedEntity, len(models.SubEntityKinds))
	found := false
	for _, kind := range models.SubEntityKinds {
		recs, err := repo.ListByTrip(ctx, kind, tripID)
		if err != nil {
			return nil, err
		}
		byKind[kind] = recs
		found = found || len(recs) > 0
	}

	if !found {
		trip, err := repo.Get(ctx, models.KindTrip, tripID)
		if err != nil || trip == nil {
			return nil, err
		}
	}

	var (
		data models.TripData
		err  error
	)
	if data.Locations, err = models.DecodeAll[models.Location](byKind[models.KindLocation]); err != nil {
		return nil, err
	}
	if data.Activities, err = models.DecodeAll[models.Activity](byKind[models.KindActivity]); err != nil {
		return nil, err
	}
	if data.Transportation, err = models.DecodeAll[models.Transportation](byKind[models.KindTransportation]); err != nil {
		return nil, err
	}
	if data.Lodging, err = models.DecodeAll[models.Lodging](byKind[models.KindLodging]); err != nil {
		return nil, err
	}
	if data.Journals, err = models.DecodeAll[models.JournalEntry](byKind[models.KindJournal]); err != nil {
		return nil, err
	}
	if data.Photos, err = models.DecodeAll[models.Photo](byKind[models.KindPhoto]); err != nil {
		return nil, err
	}
	if data.Albums, err = models.DecodeAll[models.PhotoAlbum](byKind[models.KindPhotoAlbum]); err != nil {
		return nil, err
	}
	return &data, nil
}

func (s *entityStore) ListCachedTrips(ctx context.Context) ([]models.CachedEntity, error) {
	return s.repo(s.db).ListAll(ctx, models.KindTrip)
}

func (s *entityStore) setDownloaded(ctx context.Context, tripID string, v bool) error {
	ok, err := s.repo(s.db).SetDownloaded(ctx, tripID, v)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug(ctx, "offline flag not set, trip not cached", "trip_id", tripID)
	}
	return nil
}

func (s *entityStore) MarkTripForOffline(ctx context.Context, tripID string) error {
	return s.setDownloaded(ctx, tripID, true)
}

func (s *entityStore) UnmarkTripForOffline(ctx context.Context, tripID string) error {
	return s.setDownloaded(ctx, tripID, false)
}

func (s *entityStore) MarkPhotoBlobs(ctx context.Context, photoID string, thumbnail, full *bool) error {
	found, err := s.repo(s.db).SetPhotoFlags(ctx, photoID, thumbnail, full)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: photo %s not cached", common.ErrInvalidEntity, photoID)
	}
	return nil
}

func (s *entityStore) ClearTripCache(ctx context.Context, tripID string) error {
	var removed int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		removed, err = deleteTripEntities(ctx, s.repo(tx), tripID)
		return err
	})
	if err != nil {
		return fmt.Errorf("clear trip cache %s: %w", tripID, err)
	}
	s.log.Info(ctx, "trip cache cleared", "trip_id", tripID, "records", removed)
	return nil
}

func (s *entityStore) ClearAllCache(ctx context.Context) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return clearEntities(ctx, s.repo(tx))
	})
	if err != nil {
		return fmt.Errorf("clear entity cache: %w", err)
	}
	s.log.Info(ctx, "entity cache cleared")
	return nil
}

// deleteTripEntities removes the trip row and all rows owned by it. The
// returned count covers the owned rows only.
func deleteTripEntities(ctx context.Context, repo entities.Repository, tripID string) (int64, error) {
	var total int64
	for _, kind := range models.SubEntityKinds {
		n, err := repo.DeleteByTrip(ctx, kind, tripID)
		if err != nil {
			return 0, err
		}
		total += n
	}
	if err := repo.Delete(ctx, models.KindTrip, tripID); err != nil {
		return 0, err
	}
	return total, nil
}

func clearEntities(ctx context.Context, repo entities.Repository) error {
	for _, kind := range models.AllKinds {
		if err := repo.Clear(ctx, kind); err != nil {
			return err
		}
	}
	return nil
}
