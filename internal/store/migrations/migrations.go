// Package migrations embeds the postgres schema migrations applied with goose.
package migrations

import "embed"

// Directory is the path of the migration files inside FS.
const Directory = "sql"

// FS holds the SQL migration files.
//
//go:embed sql/*.sql
var FS embed.FS
