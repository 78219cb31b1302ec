// Package cli provides the offlinectl command tree.
//
// Every command loads the configuration (defaults, JSON file, TRIPKEEPER_*
// environment, then the persistent flags), opens the App once and closes it
// when the command returns. Typical flow:
//
//	offlinectl trips import paris.json --offline
//	offlinectl estimate --trip paris
//	offlinectl cache-tiles --trip paris
//	offlinectl storage breakdown
//	offlinectl sync drain
//
// Destructive commands ask for confirmation on stdin unless --yes is given.
// Structured results are printed as indented JSON.
package cli
