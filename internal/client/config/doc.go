// Package config loads runtime configuration for offlinectl.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Environment variables prefixed with TRIPKEEPER_.
//  4. Command-line flags, which override everything else.
//
// # JSON schema
//
// Durations use timex.Duration, so they may be strings like "50ms" or
// integer nanoseconds. Keys absent from the file keep their earlier values:
//
//	{
//	  "data_dir": "/var/lib/tripkeeper",
//	  "tile_url": "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
//	  "tile_batch_size": 4,
//	  "tile_batch_delay": "50ms",
//	  "blob_backend": "s3",
//	  "s3_bucket": "tiles"
//	}
package config
