// Package migrations embeds the versioned schema applied by golang-migrate.
// Every file must run unchanged on both PostgreSQL and SQLite.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
