// Package migrations embeds the SQL migrations so a binary started outside the
// repository can still create its schema.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
