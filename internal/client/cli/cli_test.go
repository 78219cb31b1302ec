package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tripkeeper/internal/client/app"
	"github.com/dmitrijs2005/tripkeeper/internal/client/config"
	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/syncer"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/dmitrijs2005/tripkeeper/internal/tiles"
)

type harness struct {
	dataDir string
	tiles   *httptest.Server
	api     *httptest.Server

	mu       sync.Mutex
	tileHits int
	apiPaths []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{dataDir: t.TempDir()}

	h.tiles = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.tileHits++
		h.mu.Unlock()
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png:" + r.URL.Path))
	}))
	t.Cleanup(h.tiles.Close)

	h.api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.apiPaths = append(h.apiPaths, r.Method+" "+r.URL.Path)
		h.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(h.api.Close)

	return h
}

func openNop(ctx context.Context, c *config.Config) (*app.App, error) {
	return app.New(ctx, c, logging.Nop())
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	args = append(args,
		"--data-dir", h.dataDir,
		"--tile-url", h.tiles.URL+"/{z}/{x}/{y}.png",
		"--tile-batch-delay", "0s",
		"--api-url", h.api.URL,
	)
	var out, errOut bytes.Buffer
	err := Run(context.Background(), args, openNop, strings.NewReader(stdin), &out, &errOut)
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(t, "", args...)
	require.NoError(t, err, "offlinectl %s", strings.Join(args, " "))
	return out
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func ptr[T any](v T) *T { return &v }

func writeBundle(t *testing.T) (string, tripBundle) {
	t.Helper()
	b := tripBundle{
		Trip: models.Trip{ID: "paris", Title: "Paris"},
		Data: models.TripData{
			Locations: []models.Location{
				{ID: "louvre", TripID: "paris", Name: "Louvre", Latitude: ptr(48.8606), Longitude: ptr(2.3376)},
				{ID: "orsay", TripID: "paris", Name: "Orsay", Latitude: ptr(48.8600), Longitude: ptr(2.3266)},
			},
			Journals: []models.JournalEntry{{ID: "j1", TripID: "paris", Title: "Day 1", Body: "rain"}},
		},
	}
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "paris.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path, b
}

func TestTrips_ImportListShow(t *testing.T) {
	h := newHarness(t)
	path, want := writeBundle(t)

	out := h.mustRun(t, "trips", "import", path, "--offline")
	assert.Contains(t, out, "cached trip paris with 3 entities")

	out = h.mustRun(t, "trips", "list")
	assert.Contains(t, out, "paris")
	assert.Contains(t, out, "Paris")
	assert.Contains(t, out, "true")

	got := decode[tripBundle](t, h.mustRun(t, "trips", "show", "paris"))
	assert.Empty(t, cmp.Diff(want.Trip, got.Trip))
	assert.Empty(t, cmp.Diff(want.Data.Locations, got.Data.Locations))
	assert.Empty(t, cmp.Diff(want.Data.Journals, got.Data.Journals))

	h.mustRun(t, "trips", "forget", "paris")
	_, err := h.run(t, "", "trips", "show", "paris")
	assert.ErrorContains(t, err, "not cached")
}

func TestEstimate(t *testing.T) {
	h := newHarness(t)

	est := decode[models.CacheSizeEstimate](t, h.mustRun(t, "estimate",
		"--points", "48.8606,2.3376", "--min-zoom", "10", "--max-zoom", "11", "--buffer-km", "1"))
	assert.Equal(t, tiles.ZoomRange{Min: 10, Max: 11}, est.ZoomLevels)
	assert.Positive(t, est.TotalTiles)
	assert.Equal(t, est.TilesByZoom[10]+est.TilesByZoom[11], est.TotalTiles)
	assert.Equal(t, tiles.EstimateDownloadSize(est.TotalTiles), est.EstimatedBytes)

	_, err := h.run(t, "", "estimate", "--points", "48.86,2.33", "--min-zoom", "10")
	assert.ErrorContains(t, err, "go together")

	_, err = h.run(t, "", "estimate")
	assert.ErrorContains(t, err, "required")
}

func TestCacheTiles_ForTrip(t *testing.T) {
	h := newHarness(t)
	path, _ := writeBundle(t)
	h.mustRun(t, "trips", "import", path)

	res := decode[models.CacheResult](t, h.mustRun(t, "cache-tiles", "--trip", "paris",
		"--min-zoom", "12", "--max-zoom", "12", "--buffer-km", "0.5", "-q"))
	assert.True(t, res.Success)
	assert.Positive(t, res.Cached)
	assert.Equal(t, res.Total, res.Cached)
	assert.Equal(t, res.Cached, h.tileHits)

	stats := decode[models.CacheStats](t, h.mustRun(t, "tiles", "stats"))
	assert.Equal(t, 1, stats.TripCount)
	assert.Equal(t, res.Cached, stats.TotalTiles)

	x, y := tiles.LatLngToTile(48.8606, 2.3376, 12)
	url := strings.TrimSpace(h.mustRun(t, "tiles", "url", "12", strconv.Itoa(x), strconv.Itoa(y)))
	assert.True(t, strings.HasPrefix(url, "file://"), url)

	// a second run finds every tile cached
	again := decode[models.CacheResult](t, h.mustRun(t, "cache-tiles", "--trip", "paris",
		"--min-zoom", "12", "--max-zoom", "12", "--buffer-km", "0.5", "-q"))
	assert.Equal(t, res.Total, again.Skipped)
	assert.Equal(t, res.Cached, h.tileHits)

	h.mustRun(t, "tiles", "clear", "--trip", "paris")
	url = strings.TrimSpace(h.mustRun(t, "tiles", "url", "12", strconv.Itoa(x), strconv.Itoa(y)))
	assert.True(t, strings.HasPrefix(url, h.tiles.URL), url)
}

func TestCacheTiles_Bounds(t *testing.T) {
	h := newHarness(t)

	res := decode[models.CacheResult](t, h.mustRun(t, "cache-tiles",
		"--bounds", "48.85,2.33,48.86,2.34", "--min-zoom", "11", "--max-zoom", "11", "-q"))
	assert.True(t, res.Success)
	assert.Positive(t, res.Cached)

	// bounds runs are not recorded under a trip
	stats := decode[models.CacheStats](t, h.mustRun(t, "tiles", "stats"))
	assert.Zero(t, stats.TripCount)

	_, err := h.run(t, "", "cache-tiles", "--trip", "paris", "--bounds", "1,2,3,4")
	assert.ErrorContains(t, err, "either")
}

func TestQueue_AddCountClear(t *testing.T) {
	h := newHarness(t)

	h.mustRun(t, "queue", "add", "--type", "create", "--kind", "location", "--id", "l1",
		"--trip", "paris", "--payload", `{"id":"l1","name":"Louvre"}`)
	assert.Equal(t, "1\n", h.mustRun(t, "queue", "count"))

	ops := decode[[]models.SyncOperation](t, h.mustRun(t, "queue", "list", "--trip", "paris"))
	require.Len(t, ops, 1)
	assert.Equal(t, models.KindLocation, ops[0].EntityType)
	assert.JSONEq(t, `{"id":"l1","name":"Louvre"}`, string(ops[0].Payload))

	_, err := h.run(t, "n\n", "queue", "clear")
	assert.ErrorIs(t, err, errNotConfirmed)
	assert.Equal(t, "1\n", h.mustRun(t, "queue", "count"))

	_, err = h.run(t, "y\n", "queue", "clear")
	require.NoError(t, err)
	assert.Equal(t, "0\n", h.mustRun(t, "queue", "count"))

	_, err = h.run(t, "", "queue", "add", "--type", "merge", "--kind", "location")
	assert.ErrorContains(t, err, "merge")
	_, err = h.run(t, "", "queue", "add", "--kind", "location", "--payload", "{")
	assert.ErrorContains(t, err, "JSON")
}

func TestSyncDrain(t *testing.T) {
	h := newHarness(t)

	h.mustRun(t, "queue", "add", "--type", "create", "--kind", "location", "--id", "l1",
		"--trip", "paris", "--payload", `{"id":"l1"}`)
	h.mustRun(t, "queue", "add", "--type", "update", "--kind", "trip", "--id", "paris",
		"--trip", "paris", "--payload", `{"id":"paris"}`)

	res := decode[syncer.Result](t, h.mustRun(t, "sync", "drain"))
	assert.Equal(t, syncer.Result{Synced: 2}, res)
	assert.Equal(t, []string{"POST /trips/paris/locations", "PUT /trips/paris"}, h.apiPaths)
	assert.Equal(t, "0\n", h.mustRun(t, "queue", "count"))
}

func TestSession(t *testing.T) {
	h := newHarness(t)

	st := decode[sessionStatus](t, h.mustRun(t, "session", "status"))
	assert.False(t, st.Active)

	h.mustRun(t, "session", "login", "--user-id", "u1", "--username", "alice", "--email", "a@example.com")
	h.mustRun(t, "session", "update", "--timezone", "Europe/Riga")

	st = decode[sessionStatus](t, h.mustRun(t, "session", "status"))
	assert.True(t, st.Active)
	assert.True(t, st.TokenReadable)
	assert.False(t, st.ExpiringSoon)
	require.NotNil(t, st.User)
	assert.Equal(t, models.OfflineUser{ID: "u1", Username: "alice", Email: "a@example.com", Timezone: "Europe/Riga"}, *st.User)

	h.mustRun(t, "session", "extend", "--days", "2")
	st = decode[sessionStatus](t, h.mustRun(t, "session", "status"))
	assert.True(t, st.ExpiringSoon)

	h.mustRun(t, "session", "clear")
	st = decode[sessionStatus](t, h.mustRun(t, "session", "status"))
	assert.False(t, st.Active)

	_, err := h.run(t, "", "session", "login", "--user-id", "u1")
	assert.ErrorContains(t, err, "username")
}

func TestStorage(t *testing.T) {
	h := newHarness(t)
	path, _ := writeBundle(t)
	h.mustRun(t, "trips", "import", path)

	b := decode[models.StorageBreakdown](t, h.mustRun(t, "storage", "breakdown"))
	assert.Positive(t, b.Trips)
	assert.Equal(t, b.Trips+b.Thumbnails+b.Photos+b.Tiles+b.Library+b.Videos+b.Other, b.Total)

	trips := decode[[]models.CachedTripInfo](t, h.mustRun(t, "storage", "trips"))
	require.Len(t, trips, 1)
	assert.Equal(t, "Paris", trips[0].Title)

	policy := decode[models.AutoCleanupSettings](t, h.mustRun(t, "storage", "policy", "set",
		"--enabled", "--max-age-days", "14", "--categories", "videos, library"))
	assert.Equal(t, models.AutoCleanupSettings{
		Enabled:          true,
		MaxAgeInDays:     14,
		TargetCategories: []models.StorageCategory{models.CategoryVideos, models.CategoryLibrary},
	}, policy)
	assert.Empty(t, cmp.Diff(policy, decode[models.AutoCleanupSettings](t, h.mustRun(t, "storage", "policy"))))

	assert.Contains(t, h.mustRun(t, "storage", "cleanup"), "freed")

	_, err := h.run(t, "", "storage", "clear", "music")
	assert.ErrorContains(t, err, "music")

	_, err = h.run(t, "", "storage", "evict", "paris")
	assert.ErrorIs(t, err, errNotConfirmed)
	h.mustRun(t, "storage", "evict", "paris", "--yes")
	trips = decode[[]models.CachedTripInfo](t, h.mustRun(t, "storage", "trips"))
	assert.Empty(t, trips)
}

func TestConfigErrorsStopBeforeOpening(t *testing.T) {
	h := newHarness(t)
	opened := false
	open := func(ctx context.Context, c *config.Config) (*app.App, error) {
		opened = true
		return openNop(ctx, c)
	}

	var out bytes.Buffer
	err := Run(context.Background(),
		[]string{"queue", "count", "--data-dir", h.dataDir, "--blob-backend", "ftp"},
		open, strings.NewReader(""), &out, &out)
	assert.ErrorContains(t, err, "ftp")
	assert.False(t, opened)
}

func TestConfigArgs_OnlyChangedFlags(t *testing.T) {
	rt := &runtime{}
	root := newRootCommand(rt)
	root.SetArgs([]string{"queue", "count", "--log-level", "debug", "-c", "/tmp/x.json"})

	cmd, _, err := root.Find([]string{"queue", "count"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--log-level", "debug", "-c", "/tmp/x.json"}))

	assert.Equal(t, []string{"--config=/tmp/x.json", "--log-level=debug"}, configArgs(cmd))
}

func TestSyncToken(t *testing.T) {
	h := newHarness(t)
	a := strings.TrimSpace(h.mustRun(t, "sync", "token"))
	b := strings.TrimSpace(h.mustRun(t, "sync", "token"))
	assert.Len(t, a, 2*tokenBytes)
	assert.NotEqual(t, a, b)
}

func TestPhotos_PutGetDropAndEvict(t *testing.T) {
	h := newHarness(t)
	b := tripBundle{
		Trip: models.Trip{ID: "rome", Title: "Rome"},
		Data: models.TripData{Photos: []models.Photo{{ID: "img/1.jpg", TripID: "rome"}}},
	}
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	dir := t.TempDir()
	bundle := filepath.Join(dir, "rome.json")
	require.NoError(t, os.WriteFile(bundle, raw, 0o600))
	h.mustRun(t, "trips", "import", bundle)

	img := filepath.Join(dir, "thumb.jpg")
	require.NoError(t, os.WriteFile(img, []byte("jpeg"), 0o600))
	out := h.mustRun(t, "photos", "put", "img/1.jpg", img, "--thumbnail")
	assert.Contains(t, out, "stored thumbnail img/1.jpg (4 bytes)")

	_, err = h.run(t, "", "photos", "put", "ghost", img)
	assert.ErrorIs(t, err, common.ErrInvalidEntity)

	dst := filepath.Join(dir, "out.jpg")
	h.mustRun(t, "photos", "get", "img/1.jpg", "--thumbnail", "-o", dst)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), got)
	_, err = h.run(t, "", "photos", "get", "img/1.jpg", "-o", dst)
	assert.ErrorContains(t, err, "not cached")

	br := decode[models.StorageBreakdown](t, h.mustRun(t, "storage", "breakdown"))
	assert.Equal(t, int64(4), br.Thumbnails)

	h.mustRun(t, "storage", "evict", "rome", "--yes")
	br = decode[models.StorageBreakdown](t, h.mustRun(t, "storage", "breakdown"))
	assert.Zero(t, br.Thumbnails)
}
