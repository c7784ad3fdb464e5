package storage

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the latest schema version supported by the migrator.
const SchemaVersion = 1

// Migrate ensures the SQLite schema exists and is upgraded to SchemaVersion.
func Migrate(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	err = db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current)
	if err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}

	if current >= SchemaVersion {
		return nil
	}

	transaction, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}
	defer func() {
		_ = transaction.Rollback()
	}()

	// Column names match the batch columns of plant_growth.
	_, err = transaction.Exec(`
		CREATE TABLE IF NOT EXISTS plant_batches (
			batch_id TEXT PRIMARY KEY,
			system_id TEXT NOT NULL DEFAULT '',
			grow_bed_id INTEGER NULL,
			crop_type TEXT NOT NULL,
			seed_variety TEXT NOT NULL DEFAULT '',
			plant_count INTEGER NOT NULL DEFAULT 0,
			batch_created_date TEXT NOT NULL,
			days_to_harvest INTEGER NOT NULL DEFAULT 0,
			notes TEXT NULL,
			created_at TEXT NOT NULL,
			harvested_at TEXT NULL,
			harvest_weight REAL NULL,
			plants_harvested INTEGER NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create plant_batches table: %w", err)
	}

	_, err = transaction.Exec(`
		CREATE TABLE IF NOT EXISTS batch_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL UNIQUE,
			batch_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			at TEXT NOT NULL,
			note TEXT NULL,
			FOREIGN KEY(batch_id) REFERENCES plant_batches(batch_id) ON DELETE CASCADE
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create batch_events table: %w", err)
	}

	_, err = transaction.Exec(`CREATE INDEX IF NOT EXISTS idx_batch_date ON plant_batches(batch_created_date);`)
	if err != nil {
		return fmt.Errorf("migrate: create idx_batch_date: %w", err)
	}

	_, err = transaction.Exec(`CREATE INDEX IF NOT EXISTS idx_batch_crop ON plant_batches(crop_type, harvested_at);`)
	if err != nil {
		return fmt.Errorf("migrate: create idx_batch_crop: %w", err)
	}

	_, err = transaction.Exec(`CREATE INDEX IF NOT EXISTS idx_events_batch_id_at ON batch_events(batch_id, at);`)
	if err != nil {
		return fmt.Errorf("migrate: create idx_events_batch_id_at: %w", err)
	}

	_, err = transaction.Exec(`INSERT INTO schema_migrations(version) VALUES (?);`, SchemaVersion)
	if err != nil {
		return fmt.Errorf("migrate: record schema version: %w", err)
	}

	err = transaction.Commit()
	if err != nil {
		return fmt.Errorf("migrate: commit transaction: %w", err)
	}

	return nil
}
