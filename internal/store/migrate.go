package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// schemaVersion is the current expected schema version.
const schemaVersion = 2

type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the ordered list of schema migrations. Each is applied once,
// tracked in the schema_version table.
var migrations = []migration{
	{
		Version:     1,
		Description: "base schema: runs, audit_log",
		SQL: `
		CREATE TABLE IF NOT EXISTS runs (
			id                TEXT PRIMARY KEY,
			variant           TEXT NOT NULL,
			task              TEXT NOT NULL,
			provider          TEXT DEFAULT '',
			model             TEXT DEFAULT '',
			status            TEXT NOT NULL,
			iterations        INTEGER DEFAULT 0,
			prompt_tokens     INTEGER DEFAULT 0,
			completion_tokens INTEGER DEFAULT 0,
			summary           TEXT DEFAULT '',
			error             TEXT DEFAULT '',
			started_at        DATETIME NOT NULL,
			finished_at       DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

		CREATE TABLE IF NOT EXISTS audit_log (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT DEFAULT '',
			action      TEXT NOT NULL,
			tool_name   TEXT,
			command     TEXT,
			result      TEXT,
			details     TEXT,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_audit_time ON audit_log(created_at);
		CREATE INDEX IF NOT EXISTS idx_audit_run ON audit_log(run_id);
		`,
	},
	{
		Version:     2,
		Description: "v2: api_keys secret store",
		SQL: `
		CREATE TABLE IF NOT EXISTS api_keys (
			provider    TEXT PRIMARY KEY,
			api_key     TEXT NOT NULL,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		`,
	},
}

// runMigrations applies all pending schema migrations in their own
// transactions.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Debug("applying migration", "version", m.Version, "description", m.Description)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.Version, err)
		}
		for _, stmt := range splitSQL(m.SQL) {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration v%d: %w\nSQL: %s", m.Version, err, truncate(stmt, 200))
			}
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.Version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for a new database.
func SchemaVersion(db *sql.DB) (int, error) {
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&name)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query schema tables: %w", err)
	}

	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}

func splitSQL(s string) []string {
	var out []string
	for _, stmt := range strings.Split(s, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
