// Package store is the gorm-backed persistence layer for fills, cursor,
// lots, trader stats, follow configs, and intents. Shape (AutoMigrate,
// explicit TableName(), logger.Default.LogMode) is grounded on
// ChoSanghyuk-blackholedex/internal/db/transaction_recorder.go, widened
// from a single asset-snapshot table to the full schema of spec.md §6.1.
package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens an in-memory/sqlite-file database with the same
// schema, for tests that don't need a live Postgres.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&FillRow{},
		&CursorRow{},
		&LotRow{},
		&StatsRow{},
		&FollowRow{},
		&IntentRow{},
		&TxIntentRow{},
		&QuarantineRow{},
	)
}
