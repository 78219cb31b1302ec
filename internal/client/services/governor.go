package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/client/blobcache"
	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/drafts"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/entities"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/sessions"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/syncqueue"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/tilemeta"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/dbx"
	"github.com/dmitrijs2005/tripkeeper/internal/filex"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/dmitrijs2005/tripkeeper/internal/timex"
)

// flat-settings keys that survive clearing the "other" category
var keptSettingPrefixes = []string{"auth.", "theme"}

// Governor measures local storage and evicts data.
type Governor interface {
	GetStorageUsage(ctx context.Context) (models.StorageUsage, error)
	// GetStorageBreakdown computes bytes per category; nothing is stored.
	GetStorageBreakdown(ctx context.Context) (models.StorageBreakdown, error)
	// GetCachedTrips lists cached trips, most recently synced first.
	GetCachedTrips(ctx context.Context) ([]models.CachedTripInfo, error)
	// GetOldestData returns up to limit cleanup candidates, oldest first.
	GetOldestData(ctx context.Context, limit int) ([]models.OldDataInfo, error)

	ClearCategory(ctx context.Context, cat models.StorageCategory) error
	// ClearOldData removes queued operations, drafts and library items older
	// than maxAgeInDays and returns the bytes freed. Trip data is not touched.
	ClearOldData(ctx context.Context, maxAgeInDays int) (int64, error)
	// ClearTripData evicts one trip: its entities, queued operations, drafts,
	// photo blobs and tiles.
	ClearTripData(ctx context.Context, tripID string) error
	ClearAllOfflineData(ctx context.Context) error

	RequestPersistentStorage(ctx context.Context) (bool, error)

	GetAutoCleanupSettings(ctx context.Context) (models.AutoCleanupSettings, error)
	SetAutoCleanupSettings(ctx context.Context, s models.AutoCleanupSettings) error
	// RunAutoCleanup applies the stored policy once and returns the bytes
	// freed. It does nothing while the policy is disabled.
	RunAutoCleanup(ctx context.Context) (int64, error)
}

// GovernorConfig locates the data directory. QuotaBytes caps the reported
// quota; 0 means the filesystem limit.
type GovernorConfig struct {
	DataDir    string
	QuotaBytes int64
}

type governor struct {
	store    *sql.DB
	settings *sql.DB
	caches   *blobcache.Caches
	tiles    TileCache
	cfg      GovernorConfig
	log      logging.Logger
	now      func() time.Time
}

// NewGovernor returns a Governor over the local store, the flat settings
// database and the blob caches. Trip tiles are evicted through tc.
func NewGovernor(store, settings *sql.DB, caches *blobcache.Caches, tc TileCache, cfg GovernorConfig, log logging.Logger) Governor {
	return &governor{
		store:    store,
		settings: settings,
		caches:   caches,
		tiles:    tc,
		cfg:      cfg,
		log:      log.With("module", "governor"),
		now:      time.Now,
	}
}

func (g *governor) meta() metadata.Repository {
	return metadata.NewSQLiteRepository(g.settings)
}

func (g *governor) GetStorageUsage(ctx context.Context) (models.StorageUsage, error) {
	b, err := g.GetStorageBreakdown(ctx)
	if err != nil {
		return models.StorageUsage{}, err
	}
	used := b.Total
	// database files are not part of the breakdown
	if dbSize, err := filex.DirSize(g.cfg.DataDir); err == nil {
		used = max(used, dbSize)
	}

	avail, err := diskAvailable(g.cfg.DataDir)
	if err != nil {
		g.log.Warn(ctx, "disk quota unavailable", "dir", g.cfg.DataDir, "error", err)
	}
	quota := used + avail
	if g.cfg.QuotaBytes > 0 && (quota == used || g.cfg.QuotaBytes < quota) {
		quota = g.cfg.QuotaBytes
	}

	persisted, err := g.meta().Get(ctx, common.PersistedKey)
	if err != nil {
		return models.StorageUsage{}, err
	}

	u := models.StorageUsage{Used: used, Quota: quota, IsPersisted: string(persisted) == "true"}
	if quota > 0 {
		u.PercentUsed = float64(used) / float64(quota) * 100
	}
	return u, nil
}

func (g *governor) GetStorageBreakdown(ctx context.Context) (models.StorageBreakdown, error) {
	var b models.StorageBreakdown

	blobTargets := map[models.StorageCategory]*int64{
		models.CategoryThumbnails: &b.Thumbnails,
		models.CategoryPhotos:     &b.Photos,
		models.CategoryTiles:      &b.Tiles,
		models.CategoryLibrary:    &b.Library,
		models.CategoryVideos:     &b.Videos,
	}
	for cat, dst := range blobTargets {
		n, err := g.caches.ForCategory(cat).Size(ctx)
		if err != nil {
			return b, fmt.Errorf("size of %s: %w", cat, err)
		}
		*dst = n
	}

	ents := entities.NewSQLiteRepository(g.store)
	for _, kind := range models.AllKinds {
		n, err := ents.PayloadSize(ctx, kind, "")
		if err != nil {
			return b, err
		}
		b.Trips += n
	}

	others := []func(context.Context) (int64, error){
		syncqueue.NewSQLiteRepository(g.store).Size,
		drafts.NewSQLiteRepository(g.store).Size,
		sessions.NewSQLiteRepository(g.store).Size,
		tilemeta.NewSQLiteRepository(g.store).Size,
		g.meta().Size,
	}
	for _, size := range others {
		n, err := size(ctx)
		if err != nil {
			return b, err
		}
		b.Other += n
	}

	b.Total = b.Trips + b.Thumbnails + b.Photos + b.Tiles + b.Library + b.Videos + b.Other
	return b, nil
}

func (g *governor) GetCachedTrips(ctx context.Context) ([]models.CachedTripInfo, error) {
	ents := entities.NewSQLiteRepository(g.store)
	tripRecs, err := ents.ListAll(ctx, models.KindTrip)
	if err != nil {
		return nil, err
	}
	tm := tilemeta.NewSQLiteRepository(g.store)

	out := make([]models.CachedTripInfo, 0, len(tripRecs))
	for _, rec := range tripRecs {
		info := models.CachedTripInfo{
			TripID:               rec.ID,
			LastSyncedAt:         rec.LastSyncedAt,
			DownloadedForOffline: rec.DownloadedForOffline,
		}
		if trip, err := models.Decode[models.Trip](rec); err == nil {
			info.Title = trip.Title
		}

		for _, kind := range models.AllKinds {
			n, err := ents.PayloadSize(ctx, kind, rec.ID)
			if err != nil {
				return nil, err
			}
			info.EstimatedSize += n
		}

		photos, err := ents.ListByTrip(ctx, models.KindPhoto, rec.ID)
		if err != nil {
			return nil, err
		}
		info.PhotoCount = len(photos)
		for _, p := range photos {
			if p.ThumbnailCached {
				info.ThumbnailsCached++
			}
			if p.FullCached {
				info.PhotosCached++
			}
		}

		m, err := tm.Get(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		if m != nil {
			info.EstimatedSize += m.TotalSize
		}

		out = append(out, info)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastSyncedAt.After(out[j].LastSyncedAt)
	})
	return out, nil
}

func (g *governor) GetOldestData(ctx context.Context, limit int) ([]models.OldDataInfo, error) {
	if limit <= 0 {
		return []models.OldDataInfo{}, nil
	}

	ents := entities.NewSQLiteRepository(g.store)
	tripRecs, err := ents.ListAll(ctx, models.KindTrip)
	if err != nil {
		return nil, err
	}

	var out []models.OldDataInfo
	for _, rec := range tripRecs {
		info := models.OldDataInfo{Kind: models.OldDataTrip, ID: rec.ID, Timestamp: rec.LastSyncedAt}
		if trip, err := models.Decode[models.Trip](rec); err == nil {
			info.Title = trip.Title
		}
		for _, kind := range models.AllKinds {
			n, err := ents.PayloadSize(ctx, kind, rec.ID)
			if err != nil {
				return nil, err
			}
			info.Size += n
		}
		out = append(out, info)
	}

	library, err := g.caches.Library.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range library {
		out = append(out, models.OldDataInfo{
			Kind:      models.OldDataLibrary,
			ID:        e.Key,
			Title:     e.Key,
			Timestamp: e.StoredAt,
			Size:      e.Size,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *governor) ClearCategory(ctx context.Context, cat models.StorageCategory) error {
	switch cat {
	case models.CategoryTrips:
		err := dbx.WithTx(ctx, g.store, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return clearEntities(ctx, entities.NewSQLiteRepository(tx))
		})
		if err != nil {
			return fmt.Errorf("clear trips: %w", err)
		}

	case models.CategoryThumbnails, models.CategoryPhotos:
		if err := g.caches.ForCategory(cat).Clear(ctx); err != nil {
			return fmt.Errorf("clear %s: %w", cat, err)
		}
		thumb := cat == models.CategoryThumbnails
		if err := entities.NewSQLiteRepository(g.store).ResetPhotoFlags(ctx, thumb, !thumb); err != nil {
			return err
		}

	case models.CategoryTiles:
		if err := g.caches.Tiles.Clear(ctx); err != nil {
			return fmt.Errorf("clear tiles: %w", err)
		}
		if err := tilemeta.NewSQLiteRepository(g.store).Clear(ctx); err != nil {
			return err
		}

	case models.CategoryLibrary, models.CategoryVideos:
		if err := g.caches.ForCategory(cat).Clear(ctx); err != nil {
			return fmt.Errorf("clear %s: %w", cat, err)
		}

	case models.CategoryOther:
		if err := drafts.NewSQLiteRepository(g.store).Clear(ctx); err != nil {
			return err
		}
		if err := g.clearOtherSettings(ctx); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%w: %q", common.ErrUnknownCategory, cat)
	}

	g.log.Info(ctx, "storage category cleared", "category", cat)
	return nil
}

func keepSetting(key string) bool {
	if key == common.DeviceIDKey {
		return true
	}
	for _, p := range keptSettingPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func (g *governor) clearOtherSettings(ctx context.Context) error {
	n, err := g.meta().DeleteUnless(ctx, keepSetting)
	if err != nil {
		return err
	}
	g.log.Debug(ctx, "settings cleared", "removed", n)
	return nil
}

func (g *governor) ClearOldData(ctx context.Context, maxAgeInDays int) (int64, error) {
	cutoff := g.now().Add(-timex.Days(maxAgeInDays))

	type freed struct{ ops, drafts int64 }
	f, err := dbx.InTx(ctx, g.store, func(ctx context.Context, tx dbx.DBTX) (freed, error) {
		_, opBytes, err := syncqueue.NewSQLiteRepository(tx).DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return freed{}, err
		}
		_, draftBytes, err := drafts.NewSQLiteRepository(tx).DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return freed{}, err
		}
		return freed{ops: opBytes, drafts: draftBytes}, nil
	})
	if err != nil {
		return 0, fmt.Errorf("clear old data: %w", err)
	}
	total := f.ops + f.drafts

	library, err := g.caches.Library.List(ctx)
	if err != nil {
		return total, err
	}
	for _, e := range library {
		if !e.StoredAt.Before(cutoff) {
			continue
		}
		if err := g.caches.Library.Delete(ctx, e.Key); err != nil {
			return total, err
		}
		total += e.Size
	}

	freedBytes.WithLabelValues("old_data").Add(float64(total))
	g.log.Info(ctx, "old data cleared", "max_age_days", maxAgeInDays, "freed", total)
	return total, nil
}

func (g *governor) ClearTripData(ctx context.Context, tripID string) error {
	photoIDs, err := dbx.InTx(ctx, g.store, func(ctx context.Context, tx dbx.DBTX) ([]string, error) {
		ents := entities.NewSQLiteRepository(tx)
		photos, err := ents.ListByTrip(ctx, models.KindPhoto, tripID)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(photos))
		for _, p := range photos {
			ids = append(ids, p.ID)
		}

		if _, err := deleteTripEntities(ctx, ents, tripID); err != nil {
			return nil, err
		}
		if _, err := syncqueue.NewSQLiteRepository(tx).DeleteByTrip(ctx, tripID); err != nil {
			return nil, err
		}
		if _, err := drafts.NewSQLiteRepository(tx).DeleteByTrip(ctx, tripID); err != nil {
			return nil, err
		}
		return ids, nil
	})
	if err != nil {
		return fmt.Errorf("clear trip %s: %w", tripID, err)
	}

	for _, id := range photoIDs {
		key := blobcache.PhotoKey(id)
		if err := g.caches.Thumbnails.Delete(ctx, key); err != nil {
			return err
		}
		if err := g.caches.Photos.Delete(ctx, key); err != nil {
			return err
		}
	}
	if err := g.tiles.ClearTripTiles(ctx, tripID); err != nil {
		return err
	}

	g.log.Info(ctx, "trip data cleared", "trip_id", tripID, "photos", len(photoIDs))
	return nil
}

func (g *governor) ClearAllOfflineData(ctx context.Context) error {
	for _, c := range g.caches.All() {
		if err := c.Clear(ctx); err != nil {
			return fmt.Errorf("clear %s: %w", c.Name(), err)
		}
	}

	err := dbx.WithTx(ctx, g.store, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := clearEntities(ctx, entities.NewSQLiteRepository(tx)); err != nil {
			return err
		}
		if err := syncqueue.NewSQLiteRepository(tx).Clear(ctx); err != nil {
			return err
		}
		if err := drafts.NewSQLiteRepository(tx).Clear(ctx); err != nil {
			return err
		}
		if err := tilemeta.NewSQLiteRepository(tx).Clear(ctx); err != nil {
			return err
		}
		return sessions.NewSQLiteRepository(tx).Delete(ctx, models.CurrentSessionID)
	})
	if err != nil {
		return fmt.Errorf("clear local store: %w", err)
	}

	g.log.Warn(ctx, "all offline data cleared")
	return nil
}

// RequestPersistentStorage grants persistence unless the data directory is
// under the system temp directory, which the OS may purge.
func (g *governor) RequestPersistentStorage(ctx context.Context) (bool, error) {
	dir, err := filepath.Abs(g.cfg.DataDir)
	if err != nil {
		return false, err
	}
	tmp, err := filepath.EvalSymlinks(os.TempDir())
	if err != nil {
		tmp = os.TempDir()
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	granted := !filex.IsWithin(dir, tmp)
	if err := g.meta().Set(ctx, common.PersistedKey, []byte(fmt.Sprint(granted))); err != nil {
		return false, err
	}
	g.log.Info(ctx, "persistent storage requested", "dir", dir, "granted", granted)
	return granted, nil
}

func (g *governor) GetAutoCleanupSettings(ctx context.Context) (models.AutoCleanupSettings, error) {
	raw, err := g.meta().Get(ctx, common.AutoCleanupKey)
	if err != nil {
		return models.AutoCleanupSettings{}, err
	}
	if raw == nil {
		return models.DefaultAutoCleanup(), nil
	}

	s := models.DefaultAutoCleanup()
	if err := json.Unmarshal(raw, &s); err != nil {
		g.log.Warn(ctx, "invalid auto-cleanup settings, using defaults", "error", err)
		return models.DefaultAutoCleanup(), nil
	}
	return s, nil
}

func (g *governor) SetAutoCleanupSettings(ctx context.Context, s models.AutoCleanupSettings) error {
	if s.MaxAgeInDays <= 0 {
		return fmt.Errorf("max age must be positive, got %d", s.MaxAgeInDays)
	}
	for _, c := range s.TargetCategories {
		if _, err := models.ParseCategory(string(c)); err != nil {
			return fmt.Errorf("%w: %q", common.ErrUnknownCategory, c)
		}
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return g.meta().Set(ctx, common.AutoCleanupKey, raw)
}

func (g *governor) categorySize(ctx context.Context, cat models.StorageCategory) (int64, error) {
	if c := g.caches.ForCategory(cat); c != nil {
		return c.Size(ctx)
	}
	b, err := g.GetStorageBreakdown(ctx)
	if err != nil {
		return 0, err
	}
	if cat == models.CategoryTrips {
		return b.Trips, nil
	}
	return b.Other, nil
}

func (g *governor) RunAutoCleanup(ctx context.Context) (int64, error) {
	s, err := g.GetAutoCleanupSettings(ctx)
	if err != nil {
		return 0, err
	}
	if !s.Enabled {
		return 0, nil
	}

	total, err := g.ClearOldData(ctx, s.MaxAgeInDays)
	if err != nil {
		return total, err
	}

	for _, cat := range s.TargetCategories {
		size, err := g.categorySize(ctx, cat)
		if err != nil {
			return total, err
		}
		if err := g.ClearCategory(ctx, cat); err != nil {
			return total, err
		}
		total += size
		freedBytes.WithLabelValues("auto_cleanup").Add(float64(size))
	}

	g.log.Info(ctx, "auto cleanup finished", "freed", total, "categories", len(s.TargetCategories))
	return total, nil
}
