package store

import (
	"database/sql"
	"fmt"
)

// migration is a single versioned schema change. Migrations are applied in
// slice order inside individual transactions and recorded in
// schema_migrations so restarts skip what is already in place.
type migration struct {
	version     string
	description string
	sql         string
}

var migrations = []migration{
	{
		version:     "001",
		description: "initial schema",
		sql: `
			CREATE TABLE IF NOT EXISTS profiles (
				username       TEXT PRIMARY KEY,
				tutor          INTEGER NOT NULL DEFAULT 0,
				assigned_tutor TEXT,
				push_token     TEXT NOT NULL DEFAULT '',
				created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE IF NOT EXISTS messages (
				id           TEXT PRIMARY KEY,
				owner        TEXT NOT NULL,
				command      TEXT NOT NULL,
				from_profile TEXT NOT NULL,
				to_profile   TEXT NOT NULL DEFAULT '',
				content      TEXT NOT NULL DEFAULT '',
				created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (owner) REFERENCES profiles(username)
			);

			CREATE INDEX IF NOT EXISTS idx_messages_owner_time
				ON messages(owner, created_at);
			CREATE INDEX IF NOT EXISTS idx_profiles_tutor
				ON profiles(tutor);
		`,
	},
}

// applyMigrations brings the schema up to date. Each pending migration runs
// in its own transaction so a failure leaves earlier migrations applied.
func applyMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("failed to apply migration %s (%s): %w", m.version, m.description, err)
		}
	}

	return nil
}

func appliedVersions(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	versions := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions[version] = true
	}
	return versions, rows.Err()
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(m.sql); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		return err
	}
	return tx.Commit()
}
