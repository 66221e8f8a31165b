// Package migrations holds the SQL schema of the register database
package migrations

import "embed"

// FS contains the numbered migration files
//
//go:embed *.sql
var FS embed.FS
