// Package migrations embeds the schema for actors, rides and published trips.
// Seat bounds and the one-active-ride rules are enforced here as CHECK
// constraints and partial unique indexes, not only in application code.
package migrations

import "embed"

// FS holds the goose migrations. The server applies them at startup when
// MIGRATE_ON_START is true; tests apply them through testutil.
//
//go:embed *.sql
var FS embed.FS
