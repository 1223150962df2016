// Package migrations embeds the goose SQL migrations shared by every SQL engine.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
