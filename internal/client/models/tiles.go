package models

import (
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/tiles"
)

// TileCacheMetadata records which tiles were cached for a trip.
type TileCacheMetadata struct {
	TripID     string          `json:"trip_id"`
	Tiles      []tiles.Coord   `json:"tiles"`
	CachedAt   time.Time       `json:"cached_at"`
	TotalSize  int64           `json:"total_size"`
	Bounds     tiles.Bounds    `json:"bounds"`
	ZoomLevels tiles.ZoomRange `json:"zoom_levels"`
}

// CacheSizeEstimate is shown to the user before a download starts.
type CacheSizeEstimate struct {
	TotalTiles     int             `json:"total_tiles"`
	TilesByZoom    map[int]int     `json:"tiles_by_zoom"`
	EstimatedBytes int64           `json:"estimated_bytes"`
	Bounds         tiles.Bounds    `json:"bounds"`
	ZoomLevels     tiles.ZoomRange `json:"zoom_levels"`
}

// CacheProgress is reported after every batch with cumulative figures.
type CacheProgress struct {
	Total     int   `json:"total"`
	Done      int   `json:"done"`
	Cached    int   `json:"cached"`
	Failed    int   `json:"failed"`
	Skipped   int   `json:"skipped"`
	TotalSize int64 `json:"total_size"`
}

// CacheResult is the outcome of a caching run. Success is false when any
// tile failed; a partial result is still a valid outcome.
type CacheResult struct {
	Success   bool  `json:"success"`
	Total     int   `json:"total"`
	Cached    int   `json:"cached"`
	Failed    int   `json:"failed"`
	Skipped   int   `json:"skipped"`
	TotalSize int64 `json:"total_size"`
}

// CacheStats aggregates every trip's tile metadata. Untracked counts tiles
// in the cache that no trip lists, such as those of bare bounds runs.
type CacheStats struct {
	TripCount      int   `json:"trip_count"`
	TotalTiles     int   `json:"total_tiles"`
	TotalSize      int64 `json:"total_size"`
	UntrackedTiles int   `json:"untracked_tiles"`
	UntrackedSize  int64 `json:"untracked_size"`
}
