package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tripkeeper/internal/client/blobcache"
	"github.com/dmitrijs2005/tripkeeper/internal/client/config"
	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	var c config.Config
	c.LoadDefaults()
	c.DataDir = filepath.Join(t.TempDir(), "data")
	c.SyncRPCAddr = "127.0.0.1:0"
	c.MetricsAddr = ""
	c.CleanupInterval = 0
	return &c
}

func newTestApp(t *testing.T, c *config.Config) *App {
	t.Helper()
	app, err := New(context.Background(), c, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestNew_WiresServicesOnOneStore(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, testConfig(t))

	_, err := app.Queue.QueueChange(ctx, models.SyncOperation{
		Type:       models.OpCreate,
		EntityType: models.KindTrip,
		EntityID:   "t1",
		TripID:     "t1",
		Payload:    json.RawMessage(`{"id":"t1"}`),
	})
	require.NoError(t, err)

	n, err := app.Queue.GetPendingChangeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, err := app.Storage.GetStorageBreakdown(ctx)
	require.NoError(t, err)
	assert.Positive(t, b.Other)

	_, ok := app.Caches.Tiles.(*blobcache.FSCache)
	assert.True(t, ok)
}

func TestNew_S3Backend(t *testing.T) {
	c := testConfig(t)
	c.BlobBackend = config.BackendS3
	c.S3Bucket = "tiles"
	c.S3BaseEndpoint = "http://127.0.0.1:1"
	c.S3AccessKey = "key"
	c.S3SecretKey = "secret"

	app := newTestApp(t, c)
	_, ok := app.Caches.Photos.(*blobcache.S3Cache)
	assert.True(t, ok)
}

func TestClose_IsIdempotent(t *testing.T) {
	app, err := New(context.Background(), testConfig(t), logging.Nop())
	require.NoError(t, err)
	require.NoError(t, app.Close())
	require.NoError(t, app.Close())
}

func TestStartAutoCleanup_RunsPolicyOnce(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, testConfig(t))

	require.NoError(t, app.Storage.SetAutoCleanupSettings(ctx, models.AutoCleanupSettings{
		Enabled:      true,
		MaxAgeInDays: 7,
	}))
	require.NoError(t, app.Drafts.Put(ctx, models.Draft{
		ID:         "old",
		TripID:     "t1",
		EntityType: models.KindLocation,
		EntityID:   "l1",
		Reason:     models.DraftLocal,
		UpdatedAt:  time.Now().AddDate(0, 0, -30),
	}))
	require.NoError(t, app.Drafts.Put(ctx, models.Draft{
		ID:         "fresh",
		TripID:     "t1",
		EntityType: models.KindLocation,
		EntityID:   "l2",
		Reason:     models.DraftLocal,
		UpdatedAt:  time.Now(),
	}))

	app.StartAutoCleanup(ctx, 0)

	left, err := app.Drafts.List(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "fresh", left[0].ID)
}

func TestServe_StopsOnCancel(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(api.Close)

	c := testConfig(t)
	c.APIBaseURL = api.URL
	c.MetricsAddr = "127.0.0.1:0"
	app := newTestApp(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
