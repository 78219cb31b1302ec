// Package metadata persists flat settings: the device identifier, the
// auto-cleanup policy, the persistence grant and UI preferences. They live
// in their own database so that clearing trip data never touches them.
package metadata

import (
	"context"
)

type Repository interface {
	// Get returns nil for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists the stored keys in order, optionally limited to a prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// DeleteUnless removes every key for which keep reports false.
	DeleteUnless(ctx context.Context, keep func(key string) bool) (int, error)
	// Size estimates the stored bytes as the sum of key and value lengths.
	Size(ctx context.Context) (int64, error)
}
