package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Connect opens the database selected by driver ("sqlite" or "postgres")
// and ensures the schema exists. For sqlite, dsn is the database file path
// and its parent directory is created if missing.
func Connect(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case "sqlite", "":
		if dsn == "" {
			dsn = filepath.Join("data", "chunks.db")
		}
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		db, err := sqlx.Connect("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		// SQLite doesn't support multiple writers.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := initializeSchema(db, "sqlite"); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	case "postgres":
		db, err := sqlx.Connect("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := initializeSchema(db, "postgres"); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// initializeSchema creates the tables if they don't exist.
func initializeSchema(db *sqlx.DB, driver string) error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	timestamp := "TIMESTAMP"
	if driver == "postgres" {
		serial = "BIGSERIAL PRIMARY KEY"
		timestamp = "TIMESTAMPTZ"
	}

	_, err := db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS chunks (
			id            %s,
			user_id       TEXT NOT NULL,
			prompt        TEXT NOT NULL,
			answer        TEXT NOT NULL,
			ease_factor   REAL NOT NULL DEFAULT 2.5,
			interval_days INTEGER NOT NULL DEFAULT 0,
			repetitions   INTEGER NOT NULL DEFAULT 0,
			due_at        %[2]s NOT NULL,
			created_at    %[2]s NOT NULL,
			updated_at    %[2]s NOT NULL
		)
	`, serial, timestamp))
	if err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}

	_, err = db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS review_events (
			id                  %s,
			chunk_id            INTEGER NOT NULL,
			user_id             TEXT NOT NULL,
			quality             TEXT NOT NULL,
			reviewed_at         %s NOT NULL,
			ease_factor_after   REAL NOT NULL,
			interval_days_after INTEGER NOT NULL,
			FOREIGN KEY (chunk_id) REFERENCES chunks(id) ON DELETE CASCADE
		)
	`, serial, timestamp))
	if err != nil {
		return fmt.Errorf("failed to create review_events table: %w", err)
	}

	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_chunks_user_due ON chunks(user_id, due_at)",
		"CREATE INDEX IF NOT EXISTS idx_review_events_chunk ON review_events(chunk_id, reviewed_at)",
	} {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
