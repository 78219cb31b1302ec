package models

import (
	"fmt"
	"time"
)

// StorageCategory groups local storage for reporting and eviction.
type StorageCategory string

const (
	CategoryTrips      StorageCategory = "trips"
	CategoryThumbnails StorageCategory = "thumbnails"
	CategoryPhotos     StorageCategory = "photos"
	CategoryTiles      StorageCategory = "tiles"
	CategoryLibrary    StorageCategory = "library"
	CategoryVideos     StorageCategory = "videos"
	CategoryOther      StorageCategory = "other"
)

// AllCategories lists categories in report order.
var AllCategories = []StorageCategory{
	CategoryTrips,
	CategoryThumbnails,
	CategoryPhotos,
	CategoryTiles,
	CategoryLibrary,
	CategoryVideos,
	CategoryOther,
}

// ParseCategory validates s.
func ParseCategory(s string) (StorageCategory, error) {
	for _, c := range AllCategories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown storage category %q", s)
}

// StorageBreakdown is a computed snapshot of bytes per category.
type StorageBreakdown struct {
	Trips      int64 `json:"trips"`
	Thumbnails int64 `json:"thumbnails"`
	Photos     int64 `json:"photos"`
	Tiles      int64 `json:"tiles"`
	Library    int64 `json:"library"`
	Videos     int64 `json:"videos"`
	Other      int64 `json:"other"`
	Total      int64 `json:"total"`
}

// StorageUsage is the platform view of consumption.
type StorageUsage struct {
	Used        int64   `json:"used"`
	Quota       int64   `json:"quota"`
	PercentUsed float64 `json:"percent_used"`
	IsPersisted bool    `json:"is_persisted"`
}

// CachedTripInfo summarises one cached trip.
type CachedTripInfo struct {
	TripID               string    `json:"trip_id"`
	Title                string    `json:"title"`
	LastSyncedAt         time.Time `json:"last_synced_at"`
	EstimatedSize        int64     `json:"estimated_size"`
	PhotoCount           int       `json:"photo_count"`
	ThumbnailsCached     int       `json:"thumbnails_cached"`
	PhotosCached         int       `json:"photos_cached"`
	DownloadedForOffline bool      `json:"downloaded_for_offline"`
}

// OldDataKind names where an OldDataInfo candidate lives.
type OldDataKind string

const (
	OldDataTrip    OldDataKind = "trip"
	OldDataLibrary OldDataKind = "library"
)

// OldDataInfo is a cleanup candidate.
type OldDataInfo struct {
	Kind      OldDataKind `json:"kind"`
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Timestamp time.Time   `json:"timestamp"`
	Size      int64       `json:"size"`
}

// AutoCleanupSettings is the persisted cleanup preference.
type AutoCleanupSettings struct {
	Enabled          bool              `json:"enabled"`
	MaxAgeInDays     int               `json:"max_age_in_days"`
	TargetCategories []StorageCategory `json:"target_categories"`
}

// DefaultAutoCleanup returns the policy used until the user changes it.
func DefaultAutoCleanup() AutoCleanupSettings {
	return AutoCleanupSettings{
		Enabled:          false,
		MaxAgeInDays:     30,
		TargetCategories: []StorageCategory{CategoryThumbnails, CategoryTiles, CategoryLibrary},
	}
}
