package journal

import (
	"database/sql"
	"fmt"
)

// migration is one versioned schema step. Migrations are embedded rather
// than loaded from disk so the binary is self-contained; applied versions
// are tracked in schema_migrations.
type migration struct {
	Version     string
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     "001",
		Description: "session event journal",
		SQL: `
			CREATE TABLE IF NOT EXISTS session_events (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				id TEXT NOT NULL,
				tenant_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				detail TEXT NOT NULL DEFAULT '',
				received_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_session_events_tenant ON session_events(tenant_id, seq);
		`,
	},
	{
		Version:     "002",
		Description: "session snapshots",
		SQL: `
			CREATE TABLE IF NOT EXISTS session_snapshots (
				tenant_id TEXT PRIMARY KEY,
				school_name TEXT NOT NULL,
				session_name TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				updated_at DATETIME NOT NULL
			);
		`,
	},
}

// applyMigrations applies all pending migrations in order, each inside
// its own transaction.
func applyMigrations(db *sql.DB) error {
	if err := createMigrationTable(db); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("failed to apply migration %s (%s): %w", m.Version, m.Description, err)
		}
	}

	return nil
}

func createMigrationTable(db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := db.Exec(query)
	return err
}

func appliedVersions(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
		return err
	}
	return tx.Commit()
}
