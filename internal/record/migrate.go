package record

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// migration is one schema step for an event table. Statements are
// templates: {{table}} is the quoted table name, {{name}} the bare one.
type migration struct {
	Version     int
	Description string
	Statements  []string
}

// migrations is the ordered list of event table migrations. Each one is
// applied exactly once per table, tracked in schema_version.
var migrations = []migration{
	{
		Version:     1,
		Description: "base schema: text and image events keyed by subject and timestamp",
		Statements: []string{`
		CREATE TABLE IF NOT EXISTS {{table}} (
			subject_id    TEXT    NOT NULL,
			timestamp     INTEGER NOT NULL,
			display_name  TEXT    NOT NULL DEFAULT '',
			message_text  TEXT,
			image_locator TEXT,
			PRIMARY KEY (subject_id, timestamp)
		)`},
	},
	{
		Version:     2,
		Description: "image classification columns",
		Statements: []string{
			`ALTER TABLE {{table}} ADD COLUMN classification_label TEXT`,
			`ALTER TABLE {{table}} ADD COLUMN classification_confidence REAL`,
		},
	},
	{
		Version:     3,
		Description: "timestamp index for exports",
		Statements: []string{
			`CREATE INDEX IF NOT EXISTS "idx_{{name}}_timestamp" ON {{table}} (timestamp)`,
		},
	},
}

// schemaVersion is the latest migration version.
var schemaVersion = migrations[len(migrations)-1].Version

// runMigrations brings table up to schemaVersion.
func runMigrations(db *sql.DB, name, quoted string, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			tbl         TEXT    NOT NULL,
			version     INTEGER NOT NULL,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tbl, version)
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current := 0
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version WHERE tbl = ?", name)
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}

	render := strings.NewReplacer("{{table}}", quoted, "{{name}}", name)
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Info("applying migration", "table", name, "version", m.Version, "description", m.Description)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.Version, err)
		}
		for _, stmt := range m.Statements {
			if _, err := tx.Exec(render.Replace(stmt)); err != nil {
				// Tables created before versioning already have the columns.
				if strings.Contains(err.Error(), "duplicate column") {
					logger.Debug("migration statement skipped (already applied)", "version", m.Version)
					continue
				}
				tx.Rollback()
				return fmt.Errorf("migration v%d: %w", m.Version, err)
			}
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO schema_version (tbl, version, description) VALUES (?, ?, ?)",
			name, m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.Version, err)
		}
	}
	return nil
}
