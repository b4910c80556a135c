package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"githubrank/config"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS repositories (
		id SERIAL PRIMARY KEY,
		full_name VARCHAR(255) NOT NULL,
		owner VARCHAR(255) NOT NULL,
		stars INTEGER NOT NULL DEFAULT 0 CHECK (stars >= 0),
		watchers INTEGER NOT NULL DEFAULT 0 CHECK (watchers >= 0),
		forks INTEGER NOT NULL DEFAULT 0 CHECK (forks >= 0),
		open_issues INTEGER NOT NULL DEFAULT 0 CHECK (open_issues >= 0),
		language VARCHAR(255) NOT NULL DEFAULT 'Undefined',
		position_cur INTEGER CHECK (position_cur > 0),
		position_prev INTEGER CHECK (position_prev > 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT repositories_full_name_key UNIQUE (full_name)
	)`,
	`CREATE INDEX IF NOT EXISTS repositories_stars_idx ON repositories (stars DESC, full_name ASC)`,
	`CREATE INDEX IF NOT EXISTS repositories_position_cur_idx ON repositories (position_cur)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS repositories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		full_name TEXT NOT NULL UNIQUE,
		owner TEXT NOT NULL,
		stars INTEGER NOT NULL DEFAULT 0 CHECK (stars >= 0),
		watchers INTEGER NOT NULL DEFAULT 0 CHECK (watchers >= 0),
		forks INTEGER NOT NULL DEFAULT 0 CHECK (forks >= 0),
		open_issues INTEGER NOT NULL DEFAULT 0 CHECK (open_issues >= 0),
		language TEXT NOT NULL DEFAULT 'Undefined',
		position_cur INTEGER CHECK (position_cur > 0),
		position_prev INTEGER CHECK (position_prev > 0),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS repositories_stars_idx ON repositories (stars DESC, full_name ASC)`,
	`CREATE INDEX IF NOT EXISTS repositories_position_cur_idx ON repositories (position_cur)`,
}

// Migrate creates the schema if it does not exist yet
func (db *DB) Migrate(ctx context.Context) error {
	statements := postgresSchema
	if db.driver == config.DriverSQLite {
		statements = sqliteSchema
	}

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionFailed, classify(err))
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionFailed, classify(err))
	}

	db.log.Info("Schema is up to date", zap.String("driver", db.driver))
	return nil
}
