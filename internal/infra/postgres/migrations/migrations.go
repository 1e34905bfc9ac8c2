package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the schema history, applied in file name order.
var Migrations = migrate.NewMigrations()
