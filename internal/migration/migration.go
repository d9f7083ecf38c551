// Package migration holds the database schema.
package migration

import _ "embed"

// Create builds every table. Each statement is IF NOT EXISTS, so it is safe to
// run against an existing database.
//
//go:embed create-tables.sql
var Create string
