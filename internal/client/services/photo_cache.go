package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tripkeeper/internal/client/blobcache"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
)

// PhotoVariant selects one of the two stored images of a photo.
type PhotoVariant string

const (
	PhotoThumbnail PhotoVariant = "thumbnail"
	PhotoFull      PhotoVariant = "full"
)

// PhotoCache keeps photo images in the blob caches and the residency flags
// of their cached records in step with them.
type PhotoCache interface {
	// StorePhoto saves data as the v image of a cached photo record.
	StorePhoto(ctx context.Context, photoID string, v PhotoVariant, data []byte) error
	// GetPhoto returns nil when the image is not cached.
	GetPhoto(ctx context.Context, photoID string, v PhotoVariant) ([]byte, error)
	DropPhoto(ctx context.Context, photoID string, v PhotoVariant) error
}

type photoCache struct {
	store  EntityStore
	caches *blobcache.Caches
	log    logging.Logger
}

// NewPhotoCache returns a PhotoCache writing images into caches and flags
// through store.
func NewPhotoCache(store EntityStore, caches *blobcache.Caches, log logging.Logger) PhotoCache {
	return &photoCache{store: store, caches: caches, log: log.With("module", "photo_cache")}
}

func (c *photoCache) target(photoID string, v PhotoVariant) (blobcache.Cache, string, error) {
	if photoID == "" {
		return nil, "", fmt.Errorf("%w: photo without id", common.ErrInvalidEntity)
	}
	key := blobcache.PhotoKey(photoID)
	switch v {
	case PhotoThumbnail:
		return c.caches.Thumbnails, key, nil
	case PhotoFull:
		return c.caches.Photos, key, nil
	default:
		return nil, "", fmt.Errorf("unknown photo variant %q", v)
	}
}

func (v PhotoVariant) flags(cached bool) (thumbnail, full *bool) {
	if v == PhotoThumbnail {
		return &cached, nil
	}
	return nil, &cached
}

func (c *photoCache) StorePhoto(ctx context.Context, photoID string, v PhotoVariant, data []byte) error {
	blobs, key, err := c.target(photoID, v)
	if err != nil {
		return err
	}
	if err := blobs.Put(ctx, key, data); err != nil {
		return fmt.Errorf("store photo %s: %w", photoID, err)
	}

	thumb, full := v.flags(true)
	if err := c.store.MarkPhotoBlobs(ctx, photoID, thumb, full); err != nil {
		if derr := blobs.Delete(ctx, key); derr != nil {
			c.log.Warn(ctx, "orphan photo blob left", "photo_id", photoID, "variant", v, "error", derr)
		}
		return err
	}
	c.log.Debug(ctx, "photo cached", "photo_id", photoID, "variant", v, "size", len(data))
	return nil
}

func (c *photoCache) GetPhoto(ctx context.Context, photoID string, v PhotoVariant) ([]byte, error) {
	blobs, key, err := c.target(photoID, v)
	if err != nil {
		return nil, err
	}
	return blobs.Get(ctx, key)
}

func (c *photoCache) DropPhoto(ctx context.Context, photoID string, v PhotoVariant) error {
	blobs, key, err := c.target(photoID, v)
	if err != nil {
		return err
	}
	if err := blobs.Delete(ctx, key); err != nil {
		return fmt.Errorf("drop photo %s: %w", photoID, err)
	}
	thumb, full := v.flags(false)
	return c.store.MarkPhotoBlobs(ctx, photoID, thumb, full)
}
