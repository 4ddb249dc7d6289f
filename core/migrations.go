package core

import (
	"context"
	"fmt"
	"log"
)

type migration struct {
	name       string
	statements []string
}

// Append only. Applied versions are tracked by index + 1.
var migrations = []migration{
	{
		name: "create user_levels and users",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS user_levels (
				id         BIGSERIAL PRIMARY KEY,
				name       TEXT NOT NULL UNIQUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`INSERT INTO user_levels (id, name) VALUES (1, 'Administrator'), (2, 'User') ON CONFLICT (id) DO NOTHING`,
			`SELECT setval(pg_get_serial_sequence('user_levels', 'id'), GREATEST((SELECT MAX(id) FROM user_levels), 1))`,
			`CREATE TABLE IF NOT EXISTS users (
				id         BIGSERIAL PRIMARY KEY,
				level_id   BIGINT NOT NULL DEFAULT 2 REFERENCES user_levels(id),
				username   TEXT NOT NULL UNIQUE,
				email      TEXT NOT NULL UNIQUE,
				password   TEXT NOT NULL,
				name       TEXT NOT NULL,
				picture    TEXT,
				last_login TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS users_level_id_idx ON users (level_id)`,
		},
	},
}

const (
	createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	migrationApplied = `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`
	recordMigration  = `INSERT INTO schema_migrations (version) VALUES ($1)`
)

// Migrate applies pending migrations, each inside its own transaction.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for i, m := range migrations {
		version := i + 1
		var applied bool
		if err := db.QueryRow(ctx, migrationApplied, version).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %d: %w", version, err)
		}
		if applied {
			continue
		}
		if err := applyMigration(ctx, db, version, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", version, m.name, err)
		}
		log.Printf("applied migration %d: %s", version, m.name)
	}
	return nil
}

func applyMigration(ctx context.Context, db DB, version int, m migration) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	for _, stmt := range m.statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
	}
	if _, err := tx.Exec(ctx, recordMigration, version); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
