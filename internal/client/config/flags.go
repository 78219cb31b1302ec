package config

import (
	"flag"
	"io"
	"strings"

	"github.com/dmitrijs2005/tripkeeper/internal/flagx"
)

// listValue is a comma separated flag value.
type listValue struct{ dst *[]string }

func (v listValue) String() string {
	if v.dst == nil {
		return ""
	}
	return strings.Join(*v.dst, ",")
}

func (v listValue) Set(s string) error {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*v.dst = out
	return nil
}

func bind(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "directory holding the local store and blob caches")

	fs.StringVar(&c.TileURLTemplate, "tile-url", c.TileURLTemplate, "tile provider URL template with {s}, {z}, {x}, {y}")
	fs.Var(listValue{&c.TileSubdomains}, "tile-subdomains", "comma separated values for {s}")
	fs.IntVar(&c.TileBatchSize, "tile-batch-size", c.TileBatchSize, "concurrent tile fetches per batch")
	fs.DurationVar(&c.TileBatchDelay, "tile-batch-delay", c.TileBatchDelay, "pause between tile batches")
	fs.DurationVar(&c.TileFetchTimeout, "tile-fetch-timeout", c.TileFetchTimeout, "timeout of one tile request")

	fs.StringVar(&c.APIBaseURL, "api-url", c.APIBaseURL, "base URL of the remote REST API")
	fs.DurationVar(&c.APITimeout, "api-timeout", c.APITimeout, "timeout of one API request")
	fs.StringVar(&c.SyncRPCAddr, "sync-rpc-addr", c.SyncRPCAddr, "address of the sync queue gRPC endpoint")
	fs.StringVar(&c.SyncRPCToken, "sync-rpc-token", c.SyncRPCToken, "shared token for the sync queue endpoint")
	fs.IntVar(&c.SyncMaxRetries, "sync-max-retries", c.SyncMaxRetries, "retry count at which a queued change is no longer replayed")
	fs.DurationVar(&c.SyncPollInterval, "sync-poll-interval", c.SyncPollInterval, "pause between successful drain passes")

	fs.StringVar(&c.BlobBackend, "blob-backend", c.BlobBackend, "blob cache backend: fs or s3")
	fs.StringVar(&c.S3Bucket, "s3-bucket", c.S3Bucket, "S3 bucket")
	fs.StringVar(&c.S3Region, "s3-region", c.S3Region, "S3 region")
	fs.StringVar(&c.S3BaseEndpoint, "s3-endpoint", c.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&c.S3AccessKey, "s3-access-key", c.S3AccessKey, "S3 access key")
	fs.StringVar(&c.S3SecretKey, "s3-secret-key", c.S3SecretKey, "S3 secret key")
	fs.StringVar(&c.S3Prefix, "s3-prefix", c.S3Prefix, "key prefix of this device inside the bucket")

	fs.Int64Var(&c.QuotaBytes, "quota-bytes", c.QuotaBytes, "storage quota cap in bytes, 0 for disk space")
	fs.DurationVar(&c.CleanupInterval, "cleanup-interval", c.CleanupInterval, "auto-cleanup period of the serve command")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "address of the metrics endpoint, empty to disable")

	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "text, json or zerolog")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "log file with rotation, empty for stderr")
	fs.IntVar(&c.LogMaxSizeMB, "log-max-size-mb", c.LogMaxSizeMB, "log file size before rotation")
}

// Flag describes one command-line flag understood by Load.
type Flag struct {
	Name    string
	Usage   string
	Default string
}

// Flags lists the flags Load understands, for front ends that parse the
// command line themselves.
func Flags() []Flag {
	var c Config
	c.LoadDefaults()
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	bind(fs, &c)

	var out []Flag
	fs.VisitAll(func(f *flag.Flag) {
		out = append(out, Flag{Name: f.Name, Usage: f.Usage, Default: f.DefValue})
	})
	return out
}

// parseFlags overlays cfg with the known flags found in args. Unknown
// arguments are ignored so other components can parse their own flags.
func parseFlags(cfg *Config, args []string) error {
	var names []string
	for _, f := range Flags() {
		names = append(names, f.Name)
	}
	args = flagx.Pick(args, names...)

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	bind(fs, cfg)

	return fs.Parse(args)
}
