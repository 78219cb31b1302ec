package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/client/tileclient"
	"github.com/dmitrijs2005/tripkeeper/internal/flagx"
)

// Blob backends.
const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

// Config holds runtime settings for offlinectl.
//
// Durations are time.Duration values; in JSON they may be strings such as
// "50ms" or integer nanoseconds. QuotaBytes of zero means the quota is the
// disk space available to DataDir.
type Config struct {
	DataDir string `envconfig:"TRIPKEEPER_DATA_DIR"`

	TileURLTemplate  string        `envconfig:"TRIPKEEPER_TILE_URL"`
	TileSubdomains   []string      `envconfig:"TRIPKEEPER_TILE_SUBDOMAINS"`
	TileBatchSize    int           `envconfig:"TRIPKEEPER_TILE_BATCH_SIZE"`
	TileBatchDelay   time.Duration `envconfig:"TRIPKEEPER_TILE_BATCH_DELAY"`
	TileFetchTimeout time.Duration `envconfig:"TRIPKEEPER_TILE_FETCH_TIMEOUT"`

	APIBaseURL       string        `envconfig:"TRIPKEEPER_API_BASE_URL"`
	APITimeout       time.Duration `envconfig:"TRIPKEEPER_API_TIMEOUT"`
	SyncRPCAddr      string        `envconfig:"TRIPKEEPER_SYNC_RPC_ADDR"`
	SyncRPCToken     string        `envconfig:"TRIPKEEPER_SYNC_RPC_TOKEN"`
	SyncMaxRetries   int           `envconfig:"TRIPKEEPER_SYNC_MAX_RETRIES"`
	SyncPollInterval time.Duration `envconfig:"TRIPKEEPER_SYNC_POLL_INTERVAL"`

	BlobBackend    string `envconfig:"TRIPKEEPER_BLOB_BACKEND"`
	S3Bucket       string `envconfig:"TRIPKEEPER_S3_BUCKET"`
	S3Region       string `envconfig:"TRIPKEEPER_S3_REGION"`
	S3BaseEndpoint string `envconfig:"TRIPKEEPER_S3_BASE_ENDPOINT"`
	S3AccessKey    string `envconfig:"TRIPKEEPER_S3_ACCESS_KEY"`
	S3SecretKey    string `envconfig:"TRIPKEEPER_S3_SECRET_KEY"`
	S3Prefix       string `envconfig:"TRIPKEEPER_S3_PREFIX"`

	QuotaBytes      int64         `envconfig:"TRIPKEEPER_QUOTA_BYTES"`
	CleanupInterval time.Duration `envconfig:"TRIPKEEPER_CLEANUP_INTERVAL"`
	MetricsAddr     string        `envconfig:"TRIPKEEPER_METRICS_ADDR"`

	LogLevel     string `envconfig:"TRIPKEEPER_LOG_LEVEL"`
	LogFormat    string `envconfig:"TRIPKEEPER_LOG_FORMAT"`
	LogFile      string `envconfig:"TRIPKEEPER_LOG_FILE"`
	LogMaxSizeMB int    `envconfig:"TRIPKEEPER_LOG_MAX_SIZE_MB"`
}

func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "tripkeeper")
	}
	return ".tripkeeper"
}

// LoadDefaults populates c with defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = defaultDataDir()

	c.TileURLTemplate = tileclient.DefaultTemplate
	c.TileSubdomains = append([]string(nil), tileclient.DefaultSubdomains...)
	c.TileBatchSize = 4
	c.TileBatchDelay = 50 * time.Millisecond
	c.TileFetchTimeout = 10 * time.Second

	c.APIBaseURL = "http://127.0.0.1:8080/api"
	c.APITimeout = 15 * time.Second
	c.SyncRPCAddr = "127.0.0.1:50052"
	c.SyncMaxRetries = 5
	c.SyncPollInterval = 30 * time.Second

	c.BlobBackend = BackendFS
	c.S3Region = "us-east-1"

	c.CleanupInterval = 24 * time.Hour
	c.MetricsAddr = "127.0.0.1:9464"

	c.LogLevel = "info"
	c.LogFormat = "text"
	c.LogMaxSizeMB = 10
}

// Load builds a Config from defaults, then the JSON file named by -c or
// -config, then TRIPKEEPER_* environment variables, then flags in args.
// Later sources take precedence.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, flagx.ConfigFile(args)); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings no component can work with.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data dir is empty"))
	}
	if c.TileBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("tile batch size %d must be positive", c.TileBatchSize))
	}
	switch c.BlobBackend {
	case BackendFS:
	case BackendS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("s3 blob backend needs a bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob backend %q", c.BlobBackend))
	}
	if c.QuotaBytes < 0 {
		errs = append(errs, errors.New("quota bytes must not be negative"))
	}
	return errors.Join(errs...)
}

// BlobDir is the root of the filesystem blob caches.
func (c *Config) BlobDir() string {
	return filepath.Join(c.DataDir, "blobs")
}
