// Package blobcache implements the named binary caches (map tiles, photo
// thumbnails, full photos, remote library items, videos) addressed by stable
// string keys. Two backends exist: a directory per cache on the local
// filesystem and an S3-compatible bucket with a prefix per cache.
package blobcache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
)

// Cache names.
const (
	Thumbnails = "photo-thumbnails"
	Photos     = "photo-full"
	Tiles      = "map-tiles"
	Library    = "photo-library"
	Videos     = "video-cache"
)

// Names lists every cache in report order.
var Names = []string{Thumbnails, Photos, Tiles, Library, Videos}

var ErrInvalidKey = errors.New("invalid blob key")

// Entry describes one stored blob.
type Entry struct {
	Key      string
	Size     int64
	StoredAt time.Time
}

// Cache is a named content store. Missing keys are not errors: Get returns
// (nil, nil) and Delete is a no-op.
type Cache interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Has(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Entry, error)
	Size(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
	// URL returns a locator for a stored key.
	URL(key string) string
}

// Provider opens caches by name.
type Provider interface {
	Open(ctx context.Context, name string) (Cache, error)
}

// Caches groups the named caches used by the application.
type Caches struct {
	Thumbnails Cache
	Photos     Cache
	Tiles      Cache
	Library    Cache
	Videos     Cache
}

// OpenAll opens every named cache from p.
func OpenAll(ctx context.Context, p Provider) (*Caches, error) {
	c := &Caches{}
	targets := map[string]*Cache{
		Thumbnails: &c.Thumbnails,
		Photos:     &c.Photos,
		Tiles:      &c.Tiles,
		Library:    &c.Library,
		Videos:     &c.Videos,
	}
	for _, name := range Names {
		cache, err := p.Open(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("open cache %s: %w", name, err)
		}
		*targets[name] = cache
	}
	return c, nil
}

// All returns the caches in report order.
func (c *Caches) All() []Cache {
	return []Cache{c.Thumbnails, c.Photos, c.Tiles, c.Library, c.Videos}
}

// ForCategory returns the cache holding a storage category, or nil when the
// category is not blob backed.
func (c *Caches) ForCategory(cat models.StorageCategory) Cache {
	switch cat {
	case models.CategoryThumbnails:
		return c.Thumbnails
	case models.CategoryPhotos:
		return c.Photos
	case models.CategoryTiles:
		return c.Tiles
	case models.CategoryLibrary:
		return c.Library
	case models.CategoryVideos:
		return c.Videos
	default:
		return nil
	}
}

// TileKey is the stable key of a map tile.
func TileKey(z, x, y int) string {
	return fmt.Sprintf("tiles/%d/%d/%d.png", z, x, y)
}

// PhotoKey is the stable key of a photo image in the thumbnail and full
// photo caches.
func PhotoKey(id string) string {
	return "photos/" + url.PathEscape(id)
}
