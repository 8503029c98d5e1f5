package db

import "embed"

// Migrations holds the schema, applied in order by tools/migrator
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations holding the .sql files
const MigrationsDir = "migrations"
