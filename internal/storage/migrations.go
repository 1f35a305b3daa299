package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the schema version after all migrations ran.
const ExpectedSchemaVersion = 3

// Migration is a single forward-only schema change.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Price catalog",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS price_items (
					id TEXT PRIMARY KEY,
					code TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL,
					category TEXT NOT NULL DEFAULT '',
					subcategory TEXT NOT NULL DEFAULT '',
					unit TEXT NOT NULL DEFAULT '',
					keywords TEXT NOT NULL DEFAULT '[]',
					rate REAL NOT NULL DEFAULT 0,
					position INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX IF NOT EXISTS idx_price_items_code ON price_items(code)`,
				`CREATE INDEX IF NOT EXISTS idx_price_items_position ON price_items(position)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Learned patterns",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS learned_patterns (
					id TEXT PRIMARY KEY,
					query_signature TEXT NOT NULL UNIQUE,
					normalized_description TEXT NOT NULL,
					chosen_item_code TEXT NOT NULL,
					context_headers TEXT NOT NULL DEFAULT '[]',
					confidence_at_creation REAL NOT NULL DEFAULT 0,
					usage_count INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME NOT NULL,
					last_used_at DATETIME NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_learned_patterns_usage ON learned_patterns(usage_count DESC)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Match jobs",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS match_jobs (
					id TEXT PRIMARY KEY,
					method TEXT NOT NULL,
					status TEXT NOT NULL CHECK (status IN ('pending', 'parsing', 'matching', 'completed', 'failed')),
					message TEXT NOT NULL DEFAULT '',
					errors TEXT NOT NULL DEFAULT '[]',
					processed INTEGER NOT NULL DEFAULT 0,
					total INTEGER NOT NULL DEFAULT 0,
					progress INTEGER NOT NULL DEFAULT 0,
					matched INTEGER NOT NULL DEFAULT 0,
					started_at DATETIME NOT NULL,
					completed_at DATETIME
				)`,
				`CREATE INDEX IF NOT EXISTS idx_match_jobs_started ON match_jobs(started_at DESC)`,
			})
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the schema version currently recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
