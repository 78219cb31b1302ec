// Package services contains the offline data layer services: the entity
// store, the sync queue, the tile cache, the storage governor and the offline
// session vault. Each service is constructed explicitly by the composition
// root and owns no global state besides its metrics.
package services
