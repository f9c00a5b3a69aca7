package db

import "embed"

// EmbedMigrations holds the report store schema.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
