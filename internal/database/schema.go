package database

import _ "embed"

// Schema is the full schema produced by applying every migration. Tests use
// it to create databases without running the migrator.
//
//go:embed schema.sql
var Schema string
