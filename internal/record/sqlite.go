package record

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"linerelay/internal/domain"

	_ "modernc.org/sqlite"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// SQLiteStore implements domain.RecordStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	name   string
	table  string // quoted identifier
	logger *slog.Logger
}

func NewSQLiteStore(dbPath, table string, logger *slog.Logger) (*SQLiteStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := newSQLiteStore(db, table, logger)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func newSQLiteStore(db *sql.DB, table string, logger *slog.Logger) *SQLiteStore {
	return &SQLiteStore{db: db, name: table, table: `"` + table + `"`, logger: logger}
}

func (s *SQLiteStore) migrate() error {
	return runMigrations(s.db, s.name, s.table, s.logger)
}

// Upsert writes every mutable column, so fields missing from rec become NULL.
func (s *SQLiteStore) Upsert(ctx context.Context, rec domain.EventRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.table+` (subject_id, timestamp, display_name, message_text, image_locator,
			classification_label, classification_confidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subject_id, timestamp) DO UPDATE SET
			display_name = excluded.display_name,
			message_text = excluded.message_text,
			image_locator = excluded.image_locator,
			classification_label = excluded.classification_label,
			classification_confidence = excluded.classification_confidence`,
		rec.SubjectID, rec.Timestamp, rec.DisplayName,
		nullString(rec.MessageText), nullString(rec.ImageLocator),
		nullString(rec.ClassificationLabel), nullFloat(rec.ClassificationConfidence),
	)
	if err != nil {
		s.logger.Error("record upsert failed", "subject", rec.SubjectID, "timestamp", rec.Timestamp, "err", err)
		return fmt.Errorf("upsert record: %w", err)
	}
	s.logger.Debug("record upserted", "subject", rec.SubjectID, "timestamp", rec.Timestamp)
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, subjectID string, timestamp int64) (*domain.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM `+s.table+` WHERE subject_id = ? AND timestamp = ?`,
		subjectID, timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

func (s *SQLiteStore) Scan(ctx context.Context) ([]domain.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM `+s.table+` ORDER BY subject_id, timestamp`,
	)
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SQLiteStore) Delete(ctx context.Context, subjectID string, timestamp int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.table+` WHERE subject_id = ? AND timestamp = ?`, subjectID, timestamp,
	)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const columns = `subject_id, timestamp, display_name, message_text, image_locator,
	classification_label, classification_confidence`

func scanRecords(rows *sql.Rows) ([]domain.EventRecord, error) {
	var recs []domain.EventRecord
	for rows.Next() {
		var (
			r                  domain.EventRecord
			text, locator, lbl sql.NullString
			confidence         sql.NullFloat64
		)
		if err := rows.Scan(&r.SubjectID, &r.Timestamp, &r.DisplayName,
			&text, &locator, &lbl, &confidence); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		r.MessageText = fromNullString(text)
		r.ImageLocator = fromNullString(locator)
		r.ClassificationLabel = fromNullString(lbl)
		if confidence.Valid {
			r.ClassificationConfidence = &confidence.Float64
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
