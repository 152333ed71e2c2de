// Package migrations embeds the SQL schema so the server and tests share one source.
package migrations

import "embed"

// FS holds the NNN_name.sql migration files
//
//go:embed *.sql
var FS embed.FS
