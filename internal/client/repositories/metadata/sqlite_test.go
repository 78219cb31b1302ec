package metadata

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tripkeeper/internal/client/store"
)

func openSettings(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.OpenSettings(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seed(t *testing.T, r *SQLiteRepository, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		require.NoError(t, r.Set(context.Background(), k, []byte(v)))
	}
}

func TestGetSet(t *testing.T) {
	r := NewSQLiteRepository(openSettings(t))
	ctx := context.Background()

	v, err := r.Get(ctx, "device_id")
	require.NoError(t, err)
	assert.Nil(t, v, "missing key")

	require.NoError(t, r.Set(ctx, "storage.persisted", []byte("false")))
	require.NoError(t, r.Set(ctx, "storage.persisted", []byte("true")))
	v, err = r.Get(ctx, "storage.persisted")
	require.NoError(t, err)
	assert.Equal(t, []byte("true"), v)

	require.NoError(t, r.Set(ctx, "theme", nil))
	v, err = r.Get(ctx, "theme")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestDelete_Idempotent(t *testing.T) {
	r := NewSQLiteRepository(openSettings(t))
	ctx := context.Background()
	seed(t, r, map[string]string{"auth.token": "x"})

	require.NoError(t, r.Delete(ctx, "auth.token"))
	require.NoError(t, r.Delete(ctx, "auth.token"))

	v, err := r.Get(ctx, "auth.token")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestKeys(t *testing.T) {
	r := NewSQLiteRepository(openSettings(t))
	seed(t, r, map[string]string{
		"theme":                "dark",
		"storage.auto_cleanup": "{}",
		"storage.persisted":    "true",
		"device_id":            "d",
	})

	tests := []struct {
		prefix string
		want   []string
	}{
		{"", []string{"device_id", "storage.auto_cleanup", "storage.persisted", "theme"}},
		{"storage.", []string{"storage.auto_cleanup", "storage.persisted"}},
		{"auth.", nil},
	}
	for _, tt := range tests {
		t.Run("prefix="+tt.prefix, func(t *testing.T) {
			got, err := r.Keys(context.Background(), tt.prefix)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeleteUnless(t *testing.T) {
	r := NewSQLiteRepository(openSettings(t))
	ctx := context.Background()
	seed(t, r, map[string]string{
		"auth.token":    "t",
		"device_id":     "d",
		"map.last_view": "v",
		"theme":         "dark",
	})

	n, err := r.DeleteUnless(ctx, func(k string) bool {
		return k == "device_id" || strings.HasPrefix(k, "auth.")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	keys, err := r.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"auth.token", "device_id"}, keys)

	n, err = r.DeleteUnless(ctx, func(string) bool { return true })
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSize_SumsKeysAndValues(t *testing.T) {
	r := NewSQLiteRepository(openSettings(t))
	ctx := context.Background()

	n, err := r.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	seed(t, r, map[string]string{"device_id": "0123456789", "theme": "dark"})
	n, err = r.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len("device_id")+10+len("theme")+4), n)
}

func TestClosedDB_ErrorsNameTheSetting(t *testing.T) {
	db := openSettings(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "theme")
	assert.ErrorContains(t, err, `read setting "theme"`)
	assert.ErrorContains(t, r.Set(ctx, "theme", []byte("x")), `write setting "theme"`)
	assert.ErrorContains(t, r.Delete(ctx, "theme"), `delete setting "theme"`)
	_, err = r.Keys(ctx, "")
	assert.ErrorContains(t, err, "list settings")
	_, err = r.DeleteUnless(ctx, func(string) bool { return false })
	assert.ErrorContains(t, err, "list settings")
	_, err = r.Size(ctx)
	assert.ErrorContains(t, err, "size settings")
}
