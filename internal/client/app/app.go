// Package app wires the offline data layer together: the local databases,
// the blob caches, the services on top of them and the long running jobs of
// the serve command.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/tripkeeper/internal/client/blobcache"
	"github.com/dmitrijs2005/tripkeeper/internal/client/config"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/drafts"
	"github.com/dmitrijs2005/tripkeeper/internal/client/services"
	"github.com/dmitrijs2005/tripkeeper/internal/client/store"
	"github.com/dmitrijs2005/tripkeeper/internal/client/syncer"
	"github.com/dmitrijs2005/tripkeeper/internal/client/syncrpc"
	"github.com/dmitrijs2005/tripkeeper/internal/client/tileclient"
	"github.com/dmitrijs2005/tripkeeper/internal/filex"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config   *config.Config
	logger   logging.Logger
	store    *sql.DB
	settings *sql.DB
	closers  []io.Closer
	replayer syncer.Replayer

	Caches   *blobcache.Caches
	Drafts   *drafts.SQLiteRepository
	Entities services.EntityStore
	Photos   services.PhotoCache
	Queue    services.SyncQueue
	Tiles    services.TileCache
	Storage  services.Governor
	Vault    services.Vault
	Drainer  *syncer.Drainer
}

// NewApp builds the logger described by c and then the App.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, closer, err := logging.New(logging.Options{
		Level:     c.LogLevel,
		Format:    c.LogFormat,
		File:      c.LogFile,
		MaxSizeMB: c.LogMaxSizeMB,
		Service:   "offlinectl",
	})
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	app, err := New(ctx, c, logger)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	app.closers = append(app.closers, closer)
	return app, nil
}

// New opens the stores under c.DataDir and builds every service on them.
func New(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if _, err := filex.EnsureDir(c.DataDir); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	app := &App{config: c, logger: logger}

	var err error
	if app.store, err = store.OpenStore(ctx, c.DataDir); err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}
	app.closers = append(app.closers, app.store)

	if app.settings, err = store.OpenSettings(ctx, c.DataDir); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("settings init error: %w", err)
	}
	app.closers = append(app.closers, app.settings)

	provider, err := blobProvider(ctx, c)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	if app.Caches, err = blobcache.OpenAll(ctx, provider); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("blob cache init error: %w", err)
	}

	fetcher := tileclient.New(c.TileURLTemplate, c.TileSubdomains, c.TileFetchTimeout)

	app.Drafts = drafts.NewSQLiteRepository(app.store)
	app.Entities = services.NewEntityStore(app.store, logger)
	app.Photos = services.NewPhotoCache(app.Entities, app.Caches, logger)
	app.Queue = services.NewSyncQueue(app.store, logger)
	app.Tiles = services.NewTileCache(app.store, app.Caches.Tiles, fetcher,
		services.CacheOptions{BatchSize: c.TileBatchSize, BatchDelay: c.TileBatchDelay}, logger)
	app.Storage = services.NewGovernor(app.store, app.settings, app.Caches, app.Tiles,
		services.GovernorConfig{DataDir: c.DataDir, QuotaBytes: c.QuotaBytes}, logger)
	app.Vault = services.NewVault(app.store, app.settings, logger)

	app.replayer = syncer.NewRESTReplayer(c.APIBaseURL, c.APITimeout, app.Vault.GetDecryptedSessionToken)
	app.Drainer = app.DrainerFor(app.Queue)

	return app, nil
}

// DrainerFor builds a drainer over q that replays to the configured API and
// parks conflicts in the local drafts. q may be a remote queue.
func (app *App) DrainerFor(q syncer.Queue) *syncer.Drainer {
	return syncer.New(q, app.replayer, app.Drafts,
		syncer.Options{MaxRetries: app.config.SyncMaxRetries, PollInterval: app.config.SyncPollInterval}, app.logger)
}

func blobProvider(ctx context.Context, c *config.Config) (blobcache.Provider, error) {
	switch c.BlobBackend {
	case config.BackendS3:
		client, err := blobcache.NewS3Client(ctx, blobcache.S3Config{
			Endpoint:  c.S3BaseEndpoint,
			Region:    c.S3Region,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			Bucket:    c.S3Bucket,
			Prefix:    c.S3Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
		return blobcache.S3Provider{Client: client, Bucket: c.S3Bucket, Prefix: c.S3Prefix}, nil
	default:
		return blobcache.FSProvider{Root: c.BlobDir()}, nil
	}
}

func (app *App) Logger() logging.Logger {
	return app.logger
}

// Close releases the databases and the log file in reverse opening order.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i].Close())
	}
	app.closers = nil
	return errors.Join(errs...)
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// StartAutoCleanup applies the stored cleanup policy once and then on every
// tick until ctx is done. Failures are logged and retried on the next tick.
func (app *App) StartAutoCleanup(ctx context.Context, interval time.Duration) {
	app.autoCleanup(ctx)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			app.autoCleanup(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (app *App) autoCleanup(ctx context.Context) {
	freed, err := app.Storage.RunAutoCleanup(ctx)
	if err != nil {
		if ctx.Err() == nil {
			app.logger.Error(ctx, "auto cleanup failed", "error", err)
		}
		return
	}
	app.logger.Debug(ctx, "auto cleanup tick", "freed", freed)
}

func (app *App) startMetricsServer(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "metrics endpoint started", "address", app.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Serve runs the sync queue endpoint, the drainer, the metrics endpoint and
// the auto-cleanup loop until ctx is cancelled, a signal arrives or one of
// them fails.
func (app *App) Serve(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(ctx, cancelFunc)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s := syncrpc.NewServer(app.config.SyncRPCAddr, app.Queue, app.config.SyncRPCToken, app.logger)
		return s.Run(ctx)
	})
	g.Go(func() error {
		if err := app.Drainer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if app.config.MetricsAddr != "" {
		g.Go(func() error { return app.startMetricsServer(ctx) })
	}
	g.Go(func() error {
		app.StartAutoCleanup(ctx, app.config.CleanupInterval)
		return nil
	})

	err := g.Wait()
	app.logger.Info(context.Background(), "app stopped")
	return err
}
