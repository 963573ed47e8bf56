// Package migrations carries the SQL files applied by `clinic-admin migrate`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
