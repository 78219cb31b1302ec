// Package entities persists cached domain entities (trips and everything a
// trip owns) for the offline read path.
//
// Every kind has its own table with the same shape: id, trip_id, JSON
// payload, last_synced_at, version and the residency flags. Only trips use
// downloaded_for_offline and only photos use thumbnail_cached/full_cached.
//
// Typical usage
//
//	repo := entities.NewSQLiteRepository(db)
//	version, _ := repo.Upsert(ctx, rec)
//	rows, _ := repo.ListByTrip(ctx, models.KindPhoto, tripID)
//	_, _ = repo.DeleteByTrip(ctx, models.KindPhoto, tripID)
package entities
