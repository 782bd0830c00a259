package migration

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// Embed SQL files for both schemas. The migrations are written for Postgres;
// deployments on other engines provision the equivalent schema externally.
//
//go:embed migrations/live/*.sql migrations/archive/*.sql
var embeddedMigrations embed.FS

// RunLive applies the live-store migrations: notification tables, tenant
// metadata, users and tenants.
func RunLive(db *sql.DB, logger zerolog.Logger) error {
	return run(db, "migrations/live", "goose_db_version", logger)
}

// RunArchive applies the archive-store migrations. The archive may share a
// database with the live store or be a separate one; either way it keeps its
// own version table.
func RunArchive(db *sql.DB, logger zerolog.Logger) error {
	return run(db, "migrations/archive", "goose_db_version_archive", logger)
}

func run(db *sql.DB, dir, versionTable string, logger zerolog.Logger) error {
	goose.SetLogger(NewGooseAdapter(logger))
	goose.SetBaseFS(embeddedMigrations)
	goose.SetTableName(versionTable)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.Up(db, dir); err != nil {
		return err
	}
	logger.Info().Str("dir", dir).Msg("migrations completed")
	return nil
}
