// Package migrations embeds the SQLite snapshot archive schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
