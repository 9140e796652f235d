package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DB is the global database connection
var DB *sqlx.DB

// Connect establishes a connection to the database and creates the schema.
// dbType is "sqlite" (dsn is a file path) or "postgres" (dsn is a connection URL).
func Connect(dbType, dsn string) error {
	var (
		db  *sqlx.DB
		err error
	)

	switch dbType {
	case "sqlite":
		// Create data directory if it doesn't exist
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, ":memory:") {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		db, err = sqlx.Connect("sqlite3", dsn)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case "postgres":
		db, err = sqlx.Connect("postgres", dsn)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	default:
		return fmt.Errorf("unsupported database type %q", dbType)
	}

	DB = db

	return initializeSchema()
}

// Close closes the database connection
func Close() error {
	if DB != nil {
		err := DB.Close()
		DB = nil
		return err
	}
	return nil
}

func isPostgres() bool {
	return DB.DriverName() == "postgres"
}

// serialPK returns the auto-increment primary key definition for the current driver
func serialPK() string {
	if isPostgres() {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// initializeSchema creates necessary tables if they don't exist
func initializeSchema() error {
	statements := []struct {
		name  string
		query string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id BIGINT PRIMARY KEY,
				username TEXT NOT NULL DEFAULT '',
				first_name TEXT NOT NULL DEFAULT '',
				active_child_id BIGINT,
				notification_enabled BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`},
		{"children", `
			CREATE TABLE IF NOT EXISTS children (
				id ` + serialPK() + `,
				user_id BIGINT NOT NULL REFERENCES users(id),
				name TEXT NOT NULL,
				brain_profile TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				UNIQUE(user_id, name)
			)`},
		{"scripts", `
			CREATE TABLE IF NOT EXISTS scripts (
				id ` + serialPK() + `,
				title TEXT NOT NULL UNIQUE,
				category TEXT NOT NULL DEFAULT '',
				profile TEXT NOT NULL DEFAULT '',
				situation_trigger TEXT NOT NULL DEFAULT '',
				emergency_suitable BOOLEAN NOT NULL DEFAULT FALSE,
				location TEXT NOT NULL DEFAULT '',
				phrase_1 TEXT NOT NULL DEFAULT '',
				phrase_2 TEXT NOT NULL DEFAULT '',
				phrase_3 TEXT NOT NULL DEFAULT '',
				action_1 TEXT NOT NULL DEFAULT '',
				action_2 TEXT NOT NULL DEFAULT '',
				action_3 TEXT NOT NULL DEFAULT '',
				neurological_tip TEXT NOT NULL DEFAULT ''
			)`},
		{"script_usage", `
			CREATE TABLE IF NOT EXISTS script_usage (
				id ` + serialPK() + `,
				user_id BIGINT NOT NULL REFERENCES users(id),
				script_id BIGINT NOT NULL REFERENCES scripts(id),
				used_at TIMESTAMP NOT NULL
			)`},
		{"script_usage index", `
			CREATE INDEX IF NOT EXISTS idx_script_usage_user_time ON script_usage(user_id, used_at)`},
		{"script_feedback", `
			CREATE TABLE IF NOT EXISTS script_feedback (
				id ` + serialPK() + `,
				user_id BIGINT NOT NULL REFERENCES users(id),
				child_id BIGINT REFERENCES children(id),
				script_id BIGINT NOT NULL REFERENCES scripts(id),
				outcome TEXT NOT NULL,
				notes TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL
			)`},
		{"script_feedback index", `
			CREATE INDEX IF NOT EXISTS idx_script_feedback_user_time ON script_feedback(user_id, created_at)`},
		{"tracker_days", `
			CREATE TABLE IF NOT EXISTS tracker_days (
				user_id BIGINT NOT NULL REFERENCES users(id),
				day TEXT NOT NULL,
				completed_at TIMESTAMP NOT NULL,
				PRIMARY KEY (user_id, day)
			)`},
	}

	for _, st := range statements {
		if _, err := DB.Exec(st.query); err != nil {
			return fmt.Errorf("failed to create %s: %w", st.name, err)
		}
	}
	return nil
}
