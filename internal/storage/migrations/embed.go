package migrations

import "embed"

// FS embeds the SQL migrations for the SQLite question and answer store.
//
//go:embed *.sql
var FS embed.FS
