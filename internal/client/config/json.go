package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/tripkeeper/internal/timex"
)

// JsonConfig is the on-disk form of Config. It relies on timex.Duration so
// intervals can be written as "50ms" or as integer nanoseconds.
type JsonConfig struct {
	DataDir string `json:"data_dir"`

	TileURLTemplate  string         `json:"tile_url"`
	TileSubdomains   []string       `json:"tile_subdomains"`
	TileBatchSize    int            `json:"tile_batch_size"`
	TileBatchDelay   timex.Duration `json:"tile_batch_delay"`
	TileFetchTimeout timex.Duration `json:"tile_fetch_timeout"`

	APIBaseURL       string         `json:"api_base_url"`
	APITimeout       timex.Duration `json:"api_timeout"`
	SyncRPCAddr      string         `json:"sync_rpc_addr"`
	SyncRPCToken     string         `json:"sync_rpc_token"`
	SyncMaxRetries   int            `json:"sync_max_retries"`
	SyncPollInterval timex.Duration `json:"sync_poll_interval"`

	BlobBackend    string `json:"blob_backend"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`
	S3Prefix       string `json:"s3_prefix"`

	QuotaBytes      int64          `json:"quota_bytes"`
	CleanupInterval timex.Duration `json:"cleanup_interval"`
	MetricsAddr     string         `json:"metrics_addr"`

	LogLevel     string `json:"log_level"`
	LogFormat    string `json:"log_format"`
	LogFile      string `json:"log_file"`
	LogMaxSizeMB int    `json:"log_max_size_mb"`
}

func toJson(c *Config) JsonConfig {
	return JsonConfig{
		DataDir:          c.DataDir,
		TileURLTemplate:  c.TileURLTemplate,
		TileSubdomains:   c.TileSubdomains,
		TileBatchSize:    c.TileBatchSize,
		TileBatchDelay:   timex.Duration{Duration: c.TileBatchDelay},
		TileFetchTimeout: timex.Duration{Duration: c.TileFetchTimeout},
		APIBaseURL:       c.APIBaseURL,
		APITimeout:       timex.Duration{Duration: c.APITimeout},
		SyncRPCAddr:      c.SyncRPCAddr,
		SyncRPCToken:     c.SyncRPCToken,
		SyncMaxRetries:   c.SyncMaxRetries,
		SyncPollInterval: timex.Duration{Duration: c.SyncPollInterval},
		BlobBackend:      c.BlobBackend,
		S3Bucket:         c.S3Bucket,
		S3Region:         c.S3Region,
		S3BaseEndpoint:   c.S3BaseEndpoint,
		S3AccessKey:      c.S3AccessKey,
		S3SecretKey:      c.S3SecretKey,
		S3Prefix:         c.S3Prefix,
		QuotaBytes:       c.QuotaBytes,
		CleanupInterval:  timex.Duration{Duration: c.CleanupInterval},
		MetricsAddr:      c.MetricsAddr,
		LogLevel:         c.LogLevel,
		LogFormat:        c.LogFormat,
		LogFile:          c.LogFile,
		LogMaxSizeMB:     c.LogMaxSizeMB,
	}
}

func (jc JsonConfig) apply(c *Config) {
	c.DataDir = jc.DataDir
	c.TileURLTemplate = jc.TileURLTemplate
	c.TileSubdomains = jc.TileSubdomains
	c.TileBatchSize = jc.TileBatchSize
	c.TileBatchDelay = jc.TileBatchDelay.Duration
	c.TileFetchTimeout = jc.TileFetchTimeout.Duration
	c.APIBaseURL = jc.APIBaseURL
	c.APITimeout = jc.APITimeout.Duration
	c.SyncRPCAddr = jc.SyncRPCAddr
	c.SyncRPCToken = jc.SyncRPCToken
	c.SyncMaxRetries = jc.SyncMaxRetries
	c.SyncPollInterval = jc.SyncPollInterval.Duration
	c.BlobBackend = jc.BlobBackend
	c.S3Bucket = jc.S3Bucket
	c.S3Region = jc.S3Region
	c.S3BaseEndpoint = jc.S3BaseEndpoint
	c.S3AccessKey = jc.S3AccessKey
	c.S3SecretKey = jc.S3SecretKey
	c.S3Prefix = jc.S3Prefix
	c.QuotaBytes = jc.QuotaBytes
	c.CleanupInterval = jc.CleanupInterval.Duration
	c.MetricsAddr = jc.MetricsAddr
	c.LogLevel = jc.LogLevel
	c.LogFormat = jc.LogFormat
	c.LogFile = jc.LogFile
	c.LogMaxSizeMB = jc.LogMaxSizeMB
}

// parseJson overlays cfg with the keys present in the file at path. Keys
// missing from the file keep their current values. An empty path is a
// no-op.
func parseJson(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	jc := toJson(cfg)
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	jc.apply(cfg)
	return nil
}
