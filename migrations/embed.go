// Package migrations embeds the SQL schema migrations applied by
// database.Migrate and the integration test containers.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
