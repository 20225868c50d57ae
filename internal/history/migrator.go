package history

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/venomlabs/bmrotate/assets"
)

// runMigrations brings the journal schema up to date from the embedded
// SQL files. Applied versions are tracked in schema_migrations, so
// reopening an existing database is a no-op.
func runMigrations(db *sql.DB) error {
	const trackingTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME
	);`

	if _, err := db.Exec(trackingTable); err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	files, err := pendingMigrations(db)
	if err != nil {
		return err
	}

	for _, file := range files {
		log.Debug().Str("file", file).Msg("Applying history database migration...")

		content, err := assets.ReadFile("migrations/" + file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		if err := applyMigration(db, file, content); err != nil {
			return err
		}
	}

	return nil
}

// pendingMigrations lists embedded migration files not yet applied,
// in version order.
func pendingMigrations(db *sql.DB) ([]string, error) {
	entries, err := assets.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()

		var exists int
		err := db.QueryRow("SELECT 1 FROM schema_migrations WHERE version = ?", name).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("check migration %s: %w", name, err)
		}

		files = append(files, name)
	}
	sort.Strings(files)

	return files, nil
}

// applyMigration executes one migration and records it, inside a
// single transaction.
func applyMigration(db *sql.DB, version string, content []byte) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(string(content)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec migration %s: %w", version, err)
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		version, time.Now(),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", version, err)
	}

	return tx.Commit()
}
