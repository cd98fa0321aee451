// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Records gateway requests and attachment uploads with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MemoryPath selects a private in-memory database.
const MemoryPath = ":memory:"

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. ":memory:" keeps everything in
// memory for the life of the process.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	inMemory := path == MemoryPath
	if !inMemory {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	// One connection also serializes writers on a file database.
	db.SetMaxOpenConns(1)

	if !inMemory {
		// Enable WAL mode for better concurrent performance
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS gateway_requests (
			id             TEXT PRIMARY KEY,
			request_id     TEXT NOT NULL,
			method         TEXT NOT NULL,
			path           TEXT NOT NULL,
			user_id        TEXT NOT NULL,
			subject        TEXT,
			branch         TEXT NOT NULL DEFAULT '',
			message_count  INTEGER NOT NULL DEFAULT 0,
			uploaded       INTEGER NOT NULL DEFAULT 0,
			skipped        INTEGER NOT NULL DEFAULT 0,
			status         TEXT NOT NULL,
			runtime_status INTEGER NOT NULL DEFAULT 0,
			error          TEXT,
			duration_ms    INTEGER NOT NULL DEFAULT 0,
			created_at     TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_gateway_requests_created ON gateway_requests(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_gateway_requests_request ON gateway_requests(request_id);

		CREATE TABLE IF NOT EXISTS attachment_uploads (
			id              TEXT PRIMARY KEY,
			request_id      TEXT NOT NULL,
			attachment_name TEXT NOT NULL,
			media_type      TEXT NOT NULL,
			size_bytes      INTEGER NOT NULL,
			url             TEXT NOT NULL,
			message_index   INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_attachment_uploads_request ON attachment_uploads(request_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordRequest stores one gateway request. Missing IDs and timestamps are filled in.
func (s *SQLiteStore) RecordRequest(ctx context.Context, rec *RequestRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO gateway_requests (
			id, request_id, method, path, user_id, subject, branch,
			message_count, uploaded, skipped, status, runtime_status,
			error, duration_ms, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.RequestID,
		rec.Method,
		rec.Path,
		rec.UserID,
		nullString(rec.Subject),
		rec.Branch,
		rec.MessageCount,
		rec.Uploaded,
		rec.Skipped,
		rec.Status,
		rec.RuntimeStatus,
		nullString(rec.Error),
		rec.Duration.Milliseconds(),
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting request: %w", err)
	}

	s.logger.Debug("recorded request",
		"request_id", rec.RequestID,
		"status", rec.Status,
		"uploaded", rec.Uploaded,
	)
	return nil
}

// RecordUploads stores upload rows in a single transaction.
func (s *SQLiteStore) RecordUploads(ctx context.Context, uploads []*UploadRecord) error {
	if len(uploads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attachment_uploads (
			id, request_id, attachment_name, media_type, size_bytes, url, message_index, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, up := range uploads {
		if up.ID == "" {
			up.ID = uuid.New().String()
		}
		if up.CreatedAt.IsZero() {
			up.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			up.ID,
			up.RequestID,
			up.AttachmentName,
			up.MediaType,
			up.SizeBytes,
			up.URL,
			up.MessageIndex,
			up.CreatedAt.UTC().Format(timeLayout),
		); err != nil {
			return fmt.Errorf("inserting upload %q: %w", up.AttachmentName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing uploads: %w", err)
	}

	s.logger.Debug("recorded uploads", "request_id", uploads[0].RequestID, "count", len(uploads))
	return nil
}

// ListRequests returns the most recent requests, newest first.
func (s *SQLiteStore) ListRequests(ctx context.Context, limit int) ([]*RequestRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, request_id, method, path, user_id, subject, branch,
			message_count, uploaded, skipped, status, runtime_status,
			error, duration_ms, created_at
		FROM gateway_requests
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying requests: %w", err)
	}
	defer rows.Close()

	var records []*RequestRecord
	for rows.Next() {
		var rec RequestRecord
		var subject, errText sql.NullString
		var durationMS int64
		var createdAt string

		if err := rows.Scan(
			&rec.ID,
			&rec.RequestID,
			&rec.Method,
			&rec.Path,
			&rec.UserID,
			&subject,
			&rec.Branch,
			&rec.MessageCount,
			&rec.Uploaded,
			&rec.Skipped,
			&rec.Status,
			&rec.RuntimeStatus,
			&errText,
			&durationMS,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning request: %w", err)
		}

		rec.Subject = subject.String
		rec.Error = errText.String
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating requests: %w", err)
	}

	return records, nil
}

// ListUploads returns the uploads recorded for a request in the order they happened.
func (s *SQLiteStore) ListUploads(ctx context.Context, requestID string) ([]*UploadRecord, error) {
	query := `
		SELECT id, request_id, attachment_name, media_type, size_bytes, url, message_index, created_at
		FROM attachment_uploads
		WHERE request_id = ?
		ORDER BY rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("querying uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*UploadRecord
	for rows.Next() {
		var up UploadRecord
		var createdAt string
		if err := rows.Scan(
			&up.ID,
			&up.RequestID,
			&up.AttachmentName,
			&up.MediaType,
			&up.SizeBytes,
			&up.URL,
			&up.MessageIndex,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning upload: %w", err)
		}
		up.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		uploads = append(uploads, &up)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating uploads: %w", err)
	}

	return uploads, nil
}

// nullString converts empty strings to NULL for database storage
func nullString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
