package entities

import (
	"context"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
)

// Repository is the keyed record store with a secondary index by trip id.
type Repository interface {
	// Upsert writes rec. An existing row keeps its residency flags and gets
	// its version incremented; the stored version is returned.
	Upsert(ctx context.Context, rec models.CachedEntity) (int64, error)

	// Get returns (nil, nil) when the row does not exist.
	Get(ctx context.Context, kind models.EntityKind, id string) (*models.CachedEntity, error)

	ListByTrip(ctx context.Context, kind models.EntityKind, tripID string) ([]models.CachedEntity, error)
	ListAll(ctx context.Context, kind models.EntityKind) ([]models.CachedEntity, error)

	Delete(ctx context.Context, kind models.EntityKind, id string) error
	DeleteByTrip(ctx context.Context, kind models.EntityKind, tripID string) (int64, error)
	Clear(ctx context.Context, kind models.EntityKind) error

	// SetDownloaded toggles a trip's offline flag and reports whether a row
	// was updated.
	SetDownloaded(ctx context.Context, tripID string, downloaded bool) (bool, error)

	// SetPhotoFlags updates the photo residency flags; nil keeps a flag.
	SetPhotoFlags(ctx context.Context, photoID string, thumbnail, full *bool) (bool, error)

	// ResetPhotoFlags clears a residency flag on every photo.
	ResetPhotoFlags(ctx context.Context, thumbnail, full bool) error

	// PayloadSize sums payload bytes; an empty tripID covers every row.
	PayloadSize(ctx context.Context, kind models.EntityKind, tripID string) (int64, error)
}
