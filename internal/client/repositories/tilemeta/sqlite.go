// Package tilemeta persists per-trip tile cache metadata.
package tilemeta

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/dbx"
	"github.com/dmitrijs2005/tripkeeper/internal/tiles"
	"github.com/dmitrijs2005/tripkeeper/internal/timex"
)

type Repository interface {
	// Put creates or replaces the record of m.TripID.
	Put(ctx context.Context, m models.TileCacheMetadata) error
	// Get returns (nil, nil) when the trip has no tiles cached.
	Get(ctx context.Context, tripID string) (*models.TileCacheMetadata, error)
	List(ctx context.Context) ([]models.TileCacheMetadata, error)
	Delete(ctx context.Context, tripID string) error
	Clear(ctx context.Context) error
	Size(ctx context.Context) (int64, error)
}

var _ Repository = (*SQLiteRepository)(nil)

// SQLiteRepository stores the tile list and bounds as JSON columns.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Put(ctx context.Context, m models.TileCacheMetadata) error {
	if m.Tiles == nil {
		m.Tiles = []tiles.Coord{}
	}
	tilesJSON, err := json.Marshal(m.Tiles)
	if err != nil {
		return fmt.Errorf("failed to encode tiles of %s: %w", m.TripID, err)
	}
	boundsJSON, err := json.Marshal(m.Bounds)
	if err != nil {
		return fmt.Errorf("failed to encode bounds of %s: %w", m.TripID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tile_cache_metadata (trip_id, tiles, cached_at, total_size, bounds, min_zoom, max_zoom)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trip_id) DO UPDATE SET
			tiles = excluded.tiles,
			cached_at = excluded.cached_at,
			total_size = excluded.total_size,
			bounds = excluded.bounds,
			min_zoom = excluded.min_zoom,
			max_zoom = excluded.max_zoom`,
		m.TripID, tilesJSON, timex.ToUnixMilli(m.CachedAt), m.TotalSize, boundsJSON,
		m.ZoomLevels.Min, m.ZoomLevels.Max)
	if err != nil {
		return fmt.Errorf("failed to put tile metadata of %s: %w", m.TripID, err)
	}
	return nil
}

const columns = `trip_id, tiles, cached_at, total_size, bounds, min_zoom, max_zoom`

func (r *SQLiteRepository) Get(ctx context.Context, tripID string) (*models.TileCacheMetadata, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM tile_cache_metadata WHERE trip_id = ?`, tripID)
	m, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tile metadata of %s: %w", tripID, err)
	}
	return m, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.TileCacheMetadata, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM tile_cache_metadata ORDER BY trip_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tile metadata: %w", err)
	}
	defer rows.Close()

	var result []models.TileCacheMetadata
	for rows.Next() {
		m, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tile metadata: %w", err)
		}
		result = append(result, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, tripID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tile_cache_metadata WHERE trip_id = ?`, tripID); err != nil {
		return fmt.Errorf("failed to delete tile metadata of %s: %w", tripID, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tile_cache_metadata`); err != nil {
		return fmt.Errorf("failed to clear tile metadata: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Size(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(tiles) + LENGTH(bounds) + LENGTH(trip_id) + 32), 0) FROM tile_cache_metadata`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to size tile metadata: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.TileCacheMetadata, error) {
	var (
		m                    models.TileCacheMetadata
		tilesJSON, boundsRaw []byte
		cachedAt             int64
	)
	if err := s.Scan(&m.TripID, &tilesJSON, &cachedAt, &m.TotalSize, &boundsRaw, &m.ZoomLevels.Min, &m.ZoomLevels.Max); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tilesJSON, &m.Tiles); err != nil {
		return nil, fmt.Errorf("decode tiles: %w", err)
	}
	if err := json.Unmarshal(boundsRaw, &m.Bounds); err != nil {
		return nil, fmt.Errorf("decode bounds: %w", err)
	}
	m.CachedAt = timex.UnixMilli(cachedAt)
	return &m, nil
}
