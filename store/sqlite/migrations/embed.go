// Package migrations holds the SQLite schema for the Vesting store.
package migrations

import "embed"

// FS contains embedded SQLite migrations for the Vesting store.
//
//go:embed *.sql
var FS embed.FS
