// Package migrations embeds the schema of the record store, one directory per
// database driver.
package migrations

import "embed"

//go:embed sqlite/*.sql postgres/*.sql
var Files embed.FS
