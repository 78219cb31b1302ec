// Package migrations embeds the goose migrations of the two local databases:
// the main store (entities, sync queue, tile metadata, session, drafts) and
// the flat settings store that survives data resets.
package migrations

import "embed"

//go:embed store/*.sql
var Store embed.FS

//go:embed settings/*.sql
var Settings embed.FS
