// Package sqlite is the default storage driver, backed by a single SQLite
// database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/acme/dataroom/internal/model"
	"github.com/acme/dataroom/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS oauth_token (
	id                      INTEGER PRIMARY KEY CHECK (id = 1),
	access_token            TEXT NOT NULL,
	encrypted_refresh_token TEXT NOT NULL DEFAULT '',
	expiry                  TEXT,
	updated_at              TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	mime_type  TEXT NOT NULL,
	size       INTEGER NOT NULL DEFAULT 0,
	drive_id   TEXT NOT NULL UNIQUE,
	local_path TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// Store implements store.Store on SQLite.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New opens (or creates) the database at path and ensures the schema exists.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// WAL for better concurrency between the refresh path and reads.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetToken returns the singleton token record.
func (s *Store) GetToken(ctx context.Context) (*model.OAuthToken, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT access_token, encrypted_refresh_token, expiry, updated_at
		FROM oauth_token WHERE id = 1
	`)

	var tok model.OAuthToken
	var expiry sql.NullString
	var updatedAt string
	err := row.Scan(&tok.AccessToken, &tok.EncryptedRefreshToken, &expiry, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying token: %w", err)
	}

	if expiry.Valid {
		tok.Expiry, _ = time.Parse(time.RFC3339Nano, expiry.String)
	}
	tok.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &tok, nil
}

// SaveToken creates or overwrites the singleton token record.
func (s *Store) SaveToken(ctx context.Context, token *model.OAuthToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_token (id, access_token, encrypted_refresh_token, expiry, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			encrypted_refresh_token = excluded.encrypted_refresh_token,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`, token.AccessToken, token.EncryptedRefreshToken,
		nullableTime(token.Expiry), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

// DeleteToken removes the token record. Deleting an absent record is not an
// error; logout is idempotent.
func (s *Store) DeleteToken(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM oauth_token WHERE id = 1`); err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}

// Insert stores a new file row and assigns file.ID and file.CreatedAt.
func (s *Store) Insert(ctx context.Context, file *model.ImportedFile) error {
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO files (name, mime_type, size, drive_id, local_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, file.Name, file.MIMEType, file.Size, file.DriveID, file.LocalPath,
		file.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("inserting file: %w", err)
	}

	file.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted id: %w", err)
	}
	return nil
}

const fileColumns = `id, name, mime_type, size, drive_id, local_path, created_at`

// List returns all imported files, newest first.
func (s *Store) List(ctx context.Context) ([]model.ImportedFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()
	return collectFiles(rows)
}

// Search returns files whose name contains the substring, case-insensitively.
func (s *Store) Search(ctx context.Context, substring string) ([]model.ImportedFile, error) {
	pattern := "%" + escapeLike(strings.ToLower(substring)) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files
		WHERE LOWER(name) LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, id DESC
	`, pattern)
	if err != nil {
		return nil, fmt.Errorf("searching files: %w", err)
	}
	defer rows.Close()
	return collectFiles(rows)
}

// Get returns a file row by its local ID.
func (s *Store) Get(ctx context.Context, id int64) (*model.ImportedFile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+fileColumns+` FROM files WHERE id = ?
	`, id)
	return scanFile(row.Scan)
}

// GetByDriveID returns the file row imported from the given Drive file, if any.
func (s *Store) GetByDriveID(ctx context.Context, driveID string) (*model.ImportedFile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+fileColumns+` FROM files WHERE drive_id = ?
	`, driveID)
	return scanFile(row.Scan)
}

// Delete removes a file row.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func collectFiles(rows *sql.Rows) ([]model.ImportedFile, error) {
	files := []model.ImportedFile{}
	for rows.Next() {
		f, err := scanFile(rows.Scan)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating files: %w", err)
	}
	return files, nil
}

func scanFile(scan func(...any) error) (*model.ImportedFile, error) {
	var f model.ImportedFile
	var createdAt string
	err := scan(&f.ID, &f.Name, &f.MIMEType, &f.Size, &f.DriveID, &f.LocalPath, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning file: %w", err)
	}
	f.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &f, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// isUniqueViolation detects the driver's UNIQUE constraint error without
// depending on its private error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// escapeLike escapes LIKE metacharacters so user input matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}
