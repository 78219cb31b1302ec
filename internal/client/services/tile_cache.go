package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/tripkeeper/internal/client/blobcache"
	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/tilemeta"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/dmitrijs2005/tripkeeper/internal/tiles"
)

const (
	DefaultBatchSize  = 4
	DefaultBatchDelay = 50 * time.Millisecond
)

// TileFetcher downloads tiles from the live provider.
type TileFetcher interface {
	Fetch(ctx context.Context, z, x, y int) ([]byte, error)
	URL(z, x, y int) string
}

// EstimateOptions configures EstimateCacheSizeForTrip. A nil Zoom selects
// the recommended range; BufferKm <= 0 selects tiles.DefaultBufferKm.
type EstimateOptions struct {
	Zoom     *tiles.ZoomRange
	BufferKm float64
}

// CacheOptions configures a caching run. Zero values select the service
// defaults. Overwrite refetches tiles already in the blob cache.
type CacheOptions struct {
	BatchSize  int
	BatchDelay time.Duration
	Overwrite  bool
}

// TripCacheOptions configures CacheTilesForTrip.
type TripCacheOptions struct {
	EstimateOptions
	CacheOptions
}

// ProgressFunc receives cumulative figures after every batch.
type ProgressFunc func(models.CacheProgress)

// TileCache downloads map tiles for offline use and serves them back.
type TileCache interface {
	EstimateCacheSizeForTrip(locations []models.Location, opts EstimateOptions) models.CacheSizeEstimate

	// CacheTilesForBounds fetches every tile of b in zoom. Fetch failures are
	// counted, not returned. Cancelling ctx stops the run at the next batch
	// boundary with ErrCacheCanceled and the partial result.
	CacheTilesForBounds(ctx context.Context, b tiles.Bounds, zoom tiles.ZoomRange, onProgress ProgressFunc, opts CacheOptions) (models.CacheResult, error)

	// CacheTilesForTrip caches the buffered footprint of locations and
	// records the tiles in the trip's metadata, also after a partial or
	// cancelled run.
	CacheTilesForTrip(ctx context.Context, tripID string, locations []models.Location, onProgress ProgressFunc, opts TripCacheOptions) (models.CacheResult, error)

	GetTileFromCache(ctx context.Context, z, x, y int) ([]byte, error)
	IsTileCached(ctx context.Context, z, x, y int) (bool, error)
	// GetOfflineAwareTileURL returns the cached tile's locator, or the live
	// provider URL when the tile is not cached.
	GetOfflineAwareTileURL(ctx context.Context, z, x, y int) string

	// ClearTripTiles removes the trip's tiles, keeping those listed by
	// another trip, then its metadata.
	ClearTripTiles(ctx context.Context, tripID string) error
	ClearAllTiles(ctx context.Context) error

	GetCacheStats(ctx context.Context) (models.CacheStats, error)
}

type tileCache struct {
	db       *sql.DB
	blobs    blobcache.Cache
	fetcher  TileFetcher
	defaults CacheOptions
	log      logging.Logger
	now      func() time.Time
}

// NewTileCache returns a TileCache storing tiles in blobs and metadata in db.
// defaults supplies the batch size and delay when a call leaves them unset.
func NewTileCache(db *sql.DB, blobs blobcache.Cache, fetcher TileFetcher, defaults CacheOptions, log logging.Logger) TileCache {
	if defaults.BatchSize <= 0 {
		defaults.BatchSize = DefaultBatchSize
	}
	if defaults.BatchDelay <= 0 {
		defaults.BatchDelay = DefaultBatchDelay
	}
	return &tileCache{
		db:       db,
		blobs:    blobs,
		fetcher:  fetcher,
		defaults: defaults,
		log:      log.With("module", "tile_cache"),
		now:      time.Now,
	}
}

func (c *tileCache) meta() tilemeta.Repository {
	return tilemeta.NewSQLiteRepository(c.db)
}

func locationPoints(locations []models.Location) []tiles.Point {
	points := make([]tiles.Point, 0, len(locations))
	for _, l := range locations {
		if l.HasCoordinates() {
			points = append(points, tiles.Point{Lat: *l.Latitude, Lng: *l.Longitude})
		}
	}
	return points
}

func (o EstimateOptions) resolve(locations []models.Location) (tiles.Bounds, tiles.ZoomRange) {
	buffer := o.BufferKm
	if buffer <= 0 {
		buffer = tiles.DefaultBufferKm
	}
	b := tiles.BufferedBounds(locationPoints(locations), buffer)

	zoom := tiles.RecommendedZoomLevels(b)
	if o.Zoom != nil {
		zoom = *o.Zoom
	}
	return b, zoom
}

func (c *tileCache) EstimateCacheSizeForTrip(locations []models.Location, opts EstimateOptions) models.CacheSizeEstimate {
	b, zoom := opts.resolve(locations)
	byZoom := tiles.CountByZoom(b, zoom.Min, zoom.Max)

	total := 0
	for _, n := range byZoom {
		total += n
	}
	return models.CacheSizeEstimate{
		TotalTiles:     total,
		TilesByZoom:    byZoom,
		EstimatedBytes: tiles.EstimateDownloadSize(total),
		Bounds:         b,
		ZoomLevels:     zoom,
	}
}

type tileOutcome int

const (
	tileSkipped tileOutcome = iota
	tileCached
	tileFailed
)

// run is the outcome of one caching run. present lists tiles that are in
// the blob cache afterwards, with the bytes written for each (0 if skipped).
type run struct {
	result  models.CacheResult
	present map[tiles.Coord]int64
}

func (c *tileCache) CacheTilesForBounds(ctx context.Context, b tiles.Bounds, zoom tiles.ZoomRange, onProgress ProgressFunc, opts CacheOptions) (models.CacheResult, error) {
	r, err := c.cacheTiles(ctx, tiles.ForBounds(b, zoom.Min, zoom.Max), onProgress, opts)
	return r.result, err
}

func (c *tileCache) cacheTiles(ctx context.Context, coords []tiles.Coord, onProgress ProgressFunc, opts CacheOptions) (run, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = c.defaults.BatchSize
	}
	delay := opts.BatchDelay
	if delay <= 0 {
		delay = c.defaults.BatchDelay
	}

	r := run{
		result:  models.CacheResult{Total: len(coords)},
		present: make(map[tiles.Coord]int64, len(coords)),
	}
	started := time.Now()
	defer func() { tileRunDuration.Observe(time.Since(started).Seconds()) }()

	// in-flight fetches finish even when ctx is cancelled mid batch
	fetchCtx := context.WithoutCancel(ctx)

	for start := 0; start < len(coords); start += batchSize {
		if err := ctx.Err(); err != nil {
			return c.cancelled(ctx, r)
		}

		end := min(start+batchSize, len(coords))
		batch := coords[start:end]
		outcomes := make([]tileOutcome, len(batch))
		sizes := make([]int64, len(batch))

		var g errgroup.Group
		for i, coord := range batch {
			g.Go(func() error {
				var err error
				outcomes[i], sizes[i], err = c.cacheOne(fetchCtx, coord, opts.Overwrite)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return r, fmt.Errorf("cache tiles: %w", err)
		}

		for i, coord := range batch {
			switch outcomes[i] {
			case tileCached:
				r.result.Cached++
				r.result.TotalSize += sizes[i]
				r.present[coord] = sizes[i]
				tilesProcessed.WithLabelValues("cached").Inc()
			case tileSkipped:
				r.result.Skipped++
				r.present[coord] = 0
				tilesProcessed.WithLabelValues("skipped").Inc()
			case tileFailed:
				r.result.Failed++
				tilesProcessed.WithLabelValues("failed").Inc()
			}
		}

		if onProgress != nil {
			onProgress(models.CacheProgress{
				Total:     r.result.Total,
				Done:      end,
				Cached:    r.result.Cached,
				Failed:    r.result.Failed,
				Skipped:   r.result.Skipped,
				TotalSize: r.result.TotalSize,
			})
		}

		if end < len(coords) && delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return c.cancelled(ctx, r)
			case <-t.C:
			}
		}
	}

	r.result.Success = r.result.Failed == 0
	return r, nil
}

func (c *tileCache) cancelled(ctx context.Context, r run) (run, error) {
	c.log.Info(ctx, "tile caching cancelled", "cached", r.result.Cached, "failed", r.result.Failed, "total", r.result.Total)
	return r, fmt.Errorf("%w: %w", ErrCacheCanceled, ctx.Err())
}

// cacheOne returns an error only for blob cache failures; fetch failures
// are an outcome.
func (c *tileCache) cacheOne(ctx context.Context, t tiles.Coord, overwrite bool) (tileOutcome, int64, error) {
	key := blobcache.TileKey(t.Z, t.X, t.Y)
	if !overwrite {
		ok, err := c.blobs.Has(ctx, key)
		if err != nil {
			return tileFailed, 0, err
		}
		if ok {
			return tileSkipped, 0, nil
		}
	}

	data, err := c.fetcher.Fetch(ctx, t.Z, t.X, t.Y)
	if err != nil {
		c.log.Debug(ctx, "tile fetch failed", "tile", t.Key(), "error", err)
		return tileFailed, 0, nil
	}
	if err := c.blobs.Put(ctx, key, data); err != nil {
		return tileFailed, 0, err
	}
	return tileCached, int64(len(data)), nil
}

func (c *tileCache) CacheTilesForTrip(ctx context.Context, tripID string, locations []models.Location, onProgress ProgressFunc, opts TripCacheOptions) (models.CacheResult, error) {
	ctx = logging.WithFields(ctx, "trip_id", tripID)
	b, zoom := opts.EstimateOptions.resolve(locations)
	if b.IsZero() {
		c.log.Info(ctx, "no coordinates to cache tiles for")
		return models.CacheResult{Success: true}, nil
	}

	coords := tiles.ForBounds(b, zoom.Min, zoom.Max)
	c.log.Info(ctx, "caching trip tiles", "tiles", len(coords), "min_zoom", zoom.Min, "max_zoom", zoom.Max)

	r, runErr := c.cacheTiles(ctx, coords, onProgress, opts.CacheOptions)
	if len(r.present) == 0 {
		return r.result, runErr
	}

	// cancellation must not prevent recording what was cached
	if err := c.saveTripMetadata(context.WithoutCancel(ctx), tripID, b, zoom, r.present); err != nil {
		return r.result, errors.Join(runErr, fmt.Errorf("save tile metadata of trip %s: %w", tripID, err))
	}

	if runErr == nil {
		c.log.Info(ctx, "trip tiles cached",
			"cached", r.result.Cached, "skipped", r.result.Skipped, "failed", r.result.Failed)
	}
	return r.result, runErr
}

// saveTripMetadata merges present into the trip's existing metadata. Tiles
// skipped because another run cached them are counted at the average size.
func (c *tileCache) saveTripMetadata(ctx context.Context, tripID string, b tiles.Bounds, zoom tiles.ZoomRange, present map[tiles.Coord]int64) error {
	repo := c.meta()
	prev, err := repo.Get(ctx, tripID)
	if err != nil {
		return err
	}

	m := models.TileCacheMetadata{TripID: tripID, CachedAt: c.now(), Bounds: b, ZoomLevels: zoom}
	known := make(map[tiles.Coord]struct{})
	if prev != nil {
		m.Tiles = append(m.Tiles, prev.Tiles...)
		m.TotalSize = prev.TotalSize
		for _, t := range prev.Tiles {
			known[t] = struct{}{}
		}
	}

	for _, t := range tiles.ForBounds(b, zoom.Min, zoom.Max) {
		size, ok := present[t]
		if !ok {
			continue
		}
		if _, dup := known[t]; dup {
			continue
		}
		if size == 0 {
			size = tiles.AverageTileSize
		}
		m.Tiles = append(m.Tiles, t)
		m.TotalSize += size
		known[t] = struct{}{}
	}

	return repo.Put(ctx, m)
}

func (c *tileCache) GetTileFromCache(ctx context.Context, z, x, y int) ([]byte, error) {
	return c.blobs.Get(ctx, blobcache.TileKey(z, x, y))
}

func (c *tileCache) IsTileCached(ctx context.Context, z, x, y int) (bool, error) {
	return c.blobs.Has(ctx, blobcache.TileKey(z, x, y))
}

func (c *tileCache) GetOfflineAwareTileURL(ctx context.Context, z, x, y int) string {
	key := blobcache.TileKey(z, x, y)
	ok, err := c.blobs.Has(ctx, key)
	if err != nil {
		c.log.Warn(ctx, "tile lookup failed, using live url", "key", key, "error", err)
	}
	if ok {
		return c.blobs.URL(key)
	}
	return c.fetcher.URL(z, x, y)
}

func (c *tileCache) ClearTripTiles(ctx context.Context, tripID string) error {
	repo := c.meta()
	m, err := repo.Get(ctx, tripID)
	if err != nil || m == nil {
		return err
	}

	all, err := repo.List(ctx)
	if err != nil {
		return err
	}
	shared := make(map[tiles.Coord]struct{})
	for _, other := range all {
		if other.TripID == tripID {
			continue
		}
		for _, t := range other.Tiles {
			shared[t] = struct{}{}
		}
	}

	removed := 0
	for _, t := range m.Tiles {
		if _, ok := shared[t]; ok {
			continue
		}
		if err := c.blobs.Delete(ctx, blobcache.TileKey(t.Z, t.X, t.Y)); err != nil {
			return fmt.Errorf("clear tiles of trip %s: %w", tripID, err)
		}
		removed++
	}

	if err := repo.Delete(ctx, tripID); err != nil {
		return err
	}
	c.log.Info(ctx, "trip tiles cleared", "trip_id", tripID, "removed", removed, "kept_shared", len(m.Tiles)-removed)
	return nil
}

func (c *tileCache) ClearAllTiles(ctx context.Context) error {
	repo := c.meta()
	all, err := repo.List(ctx)
	if err != nil {
		return err
	}

	removed := 0
	for _, m := range all {
		for _, t := range m.Tiles {
			if err := c.blobs.Delete(ctx, blobcache.TileKey(t.Z, t.X, t.Y)); err != nil {
				return fmt.Errorf("clear tiles: %w", err)
			}
			removed++
		}
	}

	if err := repo.Clear(ctx); err != nil {
		return err
	}
	// tiles of bare bounds runs have no metadata
	if err := c.blobs.Clear(ctx); err != nil {
		return fmt.Errorf("clear tiles: %w", err)
	}
	c.log.Info(ctx, "all tiles cleared", "trips", len(all), "removed", removed)
	return nil
}

func (c *tileCache) GetCacheStats(ctx context.Context) (models.CacheStats, error) {
	all, err := c.meta().List(ctx)
	if err != nil {
		return models.CacheStats{}, err
	}

	stats := models.CacheStats{TripCount: len(all)}
	tracked := make(map[string]struct{})
	for _, m := range all {
		stats.TotalTiles += len(m.Tiles)
		if m.TotalSize > 0 {
			stats.TotalSize += m.TotalSize
		} else {
			stats.TotalSize += tiles.EstimateDownloadSize(len(m.Tiles))
		}
		for _, t := range m.Tiles {
			tracked[blobcache.TileKey(t.Z, t.X, t.Y)] = struct{}{}
		}
	}

	entries, err := c.blobs.List(ctx)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("list tiles: %w", err)
	}
	for _, e := range entries {
		if _, ok := tracked[e.Key]; !ok {
			stats.UntrackedTiles++
			stats.UntrackedSize += e.Size
		}
	}
	return stats, nil
}
