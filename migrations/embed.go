// Package migrations embeds the SQL schema so cmd/migrate can apply it
// through the goose provider API without a filesystem path at runtime.
package migrations

import "embed"

// FS holds all *.sql migration files.
//
//go:embed *.sql
var FS embed.FS
