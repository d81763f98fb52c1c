// Package export writes parity results to a SQLite database for offline
// querying.
//
// This file implements the schema.
package export

import (
	"database/sql"
	"fmt"
)

// Schema version for tracking migrations
const SchemaVersion = 1

// CreateSchema creates all tables and indexes in the database.
func CreateSchema(db *sql.DB) error {
	if err := createCoreTables(db); err != nil {
		return fmt.Errorf("create core tables: %w", err)
	}

	if err := createStatsTables(db); err != nil {
		return fmt.Errorf("create stats tables: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}

	if err := createMetaTable(db); err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}

	return nil
}

// createCoreTables creates the rows and labels tables.
func createCoreTables(db *sql.DB) error {
	// One entry per row of the best path
	rowsSQL := `
		CREATE TABLE IF NOT EXISTS rows (
			idx INTEGER PRIMARY KEY,
			beat REAL NOT NULL,
			second REAL NOT NULL,
			columns TEXT NOT NULL,
			facing REAL NOT NULL DEFAULT 0,
			cost REAL NOT NULL DEFAULT 0,
			candle TEXT
		)
	`
	if _, err := db.Exec(rowsSQL); err != nil {
		return fmt.Errorf("create rows table: %w", err)
	}

	// Foot assigned to each labelled note
	labelsSQL := `
		CREATE TABLE IF NOT EXISTS labels (
			note_key TEXT PRIMARY KEY,
			beat REAL NOT NULL,
			second REAL NOT NULL,
			col INTEGER NOT NULL,
			note_type TEXT NOT NULL,
			foot TEXT NOT NULL,
			override TEXT
		)
	`
	if _, err := db.Exec(labelsSQL); err != nil {
		return fmt.Errorf("create labels table: %w", err)
	}

	return nil
}

// createStatsTables creates the per-row technique tables.
func createStatsTables(db *sql.DB) error {
	techniquesSQL := `
		CREATE TABLE IF NOT EXISTS techniques (
			row_idx INTEGER NOT NULL,
			technique TEXT NOT NULL,
			PRIMARY KEY (row_idx, technique),
			FOREIGN KEY (row_idx) REFERENCES rows(idx)
		)
	`
	if _, err := db.Exec(techniquesSQL); err != nil {
		return fmt.Errorf("create techniques table: %w", err)
	}

	errorsSQL := `
		CREATE TABLE IF NOT EXISTS technique_errors (
			row_idx INTEGER NOT NULL,
			error TEXT NOT NULL,
			PRIMARY KEY (row_idx, error),
			FOREIGN KEY (row_idx) REFERENCES rows(idx)
		)
	`
	if _, err := db.Exec(errorsSQL); err != nil {
		return fmt.Errorf("create technique_errors table: %w", err)
	}

	return nil
}

// createIndexes creates indexes for the common lookups.
func createIndexes(db *sql.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_rows_beat ON rows(beat)`,
		`CREATE INDEX IF NOT EXISTS idx_labels_beat ON labels(beat)`,
		`CREATE INDEX IF NOT EXISTS idx_labels_foot ON labels(foot)`,
		`CREATE INDEX IF NOT EXISTS idx_techniques_technique ON techniques(technique)`,
		`CREATE INDEX IF NOT EXISTS idx_technique_errors_error ON technique_errors(error)`,
	}

	for _, sql := range indexes {
		if _, err := db.Exec(sql); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	return nil
}

// createMetaTable creates the key/value export metadata table.
func createMetaTable(db *sql.DB) error {
	metaSQL := `
		CREATE TABLE IF NOT EXISTS export_meta (
			key TEXT PRIMARY KEY,
			value TEXT
		)
	`
	if _, err := db.Exec(metaSQL); err != nil {
		return fmt.Errorf("create export_meta table: %w", err)
	}
	return nil
}

// InsertMetaValue inserts or replaces a key/value pair in export_meta.
func InsertMetaValue(db *sql.DB, key, value string) error {
	sql := `INSERT OR REPLACE INTO export_meta (key, value) VALUES (?, ?)`
	_, err := db.Exec(sql, key, value)
	return err
}

// OptimizeDatabase compacts a finished export into a single file.
func OptimizeDatabase(db *sql.DB) error {
	optimizations := []string{
		// Single file mode (no WAL journal)
		`PRAGMA journal_mode=DELETE`,
		`ANALYZE`,
		`PRAGMA optimize`,
	}

	for _, sql := range optimizations {
		if _, err := db.Exec(sql); err != nil {
			// Some pragmas may fail depending on state, continue
			continue
		}
	}

	// VACUUM must be last and outside transaction
	if _, err := db.Exec(`VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}

	return nil
}
