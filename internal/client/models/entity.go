// Package models defines the records kept by the offline data layer: cached
// domain entities, queued mutations, tile metadata, drafts and the offline
// session.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/common"
)

// EntityKind names a category of cached domain entity. Each kind lives in its
// own table.
type EntityKind string

const (
	KindTrip           EntityKind = "trip"
	KindLocation       EntityKind = "location"
	KindActivity       EntityKind = "activity"
	KindTransportation EntityKind = "transportation"
	KindLodging        EntityKind = "lodging"
	KindJournal        EntityKind = "journal"
	KindPhoto          EntityKind = "photo"
	KindPhotoAlbum     EntityKind = "photo_album"
)

// SubEntityKinds are the kinds owned by a trip.
var SubEntityKinds = []EntityKind{
	KindLocation,
	KindActivity,
	KindTransportation,
	KindLodging,
	KindJournal,
	KindPhoto,
	KindPhotoAlbum,
}

// AllKinds lists every kind, trips first.
var AllKinds = append([]EntityKind{KindTrip}, SubEntityKinds...)

// Valid reports whether k is a known kind.
func (k EntityKind) Valid() bool {
	for _, v := range AllKinds {
		if v == k {
			return true
		}
	}
	return false
}

// Entity is implemented by every cacheable domain type.
type Entity interface {
	EntityID() string
	Kind() EntityKind
}

// CachedEntity is one locally mirrored entity. Payload holds the domain
// object as JSON.
type CachedEntity struct {
	ID           string
	TripID       string
	Kind         EntityKind
	Payload      json.RawMessage
	LastSyncedAt time.Time
	Version      int64

	// trips only
	DownloadedForOffline bool

	// photos only
	ThumbnailCached bool
	FullCached      bool
}

// NewCachedEntity wraps e for storage under tripID. Every kind but a trip
// needs an owning trip.
func NewCachedEntity(tripID string, e Entity) (CachedEntity, error) {
	if e.EntityID() == "" {
		return CachedEntity{}, fmt.Errorf("%w: %s without id", common.ErrInvalidEntity, e.Kind())
	}
	if e.Kind() != KindTrip && tripID == "" {
		return CachedEntity{}, fmt.Errorf("%w: %s %s without trip", common.ErrInvalidTrip, e.Kind(), e.EntityID())
	}
	b, err := json.Marshal(e)
	if err != nil {
		return CachedEntity{}, fmt.Errorf("marshal %s %s: %w", e.Kind(), e.EntityID(), err)
	}
	if e.Kind() == KindTrip {
		tripID = ""
	}
	return CachedEntity{ID: e.EntityID(), TripID: tripID, Kind: e.Kind(), Payload: b}, nil
}

// Decode unmarshals the payload of c into T.
func Decode[T any](c CachedEntity) (T, error) {
	var v T
	if err := json.Unmarshal(c.Payload, &v); err != nil {
		return v, fmt.Errorf("decode %s %s: %w", c.Kind, c.ID, err)
	}
	return v, nil
}

// DecodeAll decodes every record, stopping at the first failure.
func DecodeAll[T any](records []CachedEntity) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, r := range records {
		v, err := Decode[T](r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
