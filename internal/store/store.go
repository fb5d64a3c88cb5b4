// Package store defines the persistence interfaces for the data room: the
// singleton OAuth token record and the imported-file metadata table.
// Implementations live in the sqlite, dynamo and memory subpackages.
package store

import (
	"context"
	"errors"

	"github.com/acme/dataroom/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert collides with the unique
	// drive_id constraint.
	ErrDuplicate = errors.New("duplicate drive id")
)

// TokenStore persists the single OAuth token record. There is at most one
// record per deployment; Save overwrites it in place.
type TokenStore interface {
	GetToken(ctx context.Context) (*model.OAuthToken, error)
	SaveToken(ctx context.Context, token *model.OAuthToken) error
	DeleteToken(ctx context.Context) error
}

// FileStore is CRUD over imported-file metadata.
//
// Insert assigns ID and must reject a duplicate DriveID with ErrDuplicate;
// the storage-layer constraint is the final backstop against concurrent
// imports of the same file.
type FileStore interface {
	Insert(ctx context.Context, file *model.ImportedFile) error

	// List returns all files, newest CreatedAt first.
	List(ctx context.Context) ([]model.ImportedFile, error)

	// Search returns files whose name contains the substring,
	// case-insensitively, newest first.
	Search(ctx context.Context, substring string) ([]model.ImportedFile, error)

	Get(ctx context.Context, id int64) (*model.ImportedFile, error)
	GetByDriveID(ctx context.Context, driveID string) (*model.ImportedFile, error)

	// Delete removes the metadata row only; the caller owns the on-disk
	// content.
	Delete(ctx context.Context, id int64) error
}

// Store is the combination implemented by every storage driver.
type Store interface {
	TokenStore
	FileStore
	Close() error
}
