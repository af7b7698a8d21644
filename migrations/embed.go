// Package migrations embeds the SQL schema for golang-migrate and integration tests.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
