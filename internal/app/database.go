package app

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/database"
)

// Connect opens the contact database described by cfg.
func Connect(ctx context.Context, cfg config.Config, logger ectologger.Logger) (database.DB, error) {
	return database.Connect(ctx, database.ConnectConfig{
		Driver:          cfg.DatabaseDriver,
		DSN:             cfg.DatabaseDSN(),
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
}

// Migrate brings the schema to the configured version, or the latest one when
// no version is set.
func Migrate(cfg config.Config, db database.DB, logger ectologger.Logger) error {
	version := uint(0)
	if cfg.DatabaseMigrationVersion > 0 {
		version = uint(cfg.DatabaseMigrationVersion)
	}

	return database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             version,
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	}).Migrate(cfg.DatabaseName, db)
}
