// Package adapter defines the provider-client abstraction over the remote
// document store. Handlers and the import pipeline only see these
// interfaces; the one real implementation lives in the googledrive
// subpackage, and tests substitute fakes.
package adapter

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when the remote file does not exist.
var ErrNotFound = errors.New("remote file not found")

// RemoteFile is the provider's metadata for a listable file.
type RemoteFile struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	MIMEType      string    `json:"mimeType"`
	Size          int64     `json:"size,omitempty"`
	ModifiedTime  time.Time `json:"modifiedTime"`
	IconLink      string    `json:"iconLink,omitempty"`
	ThumbnailLink string    `json:"thumbnailLink,omitempty"`
}

// FileList is one page of remote files.
type FileList struct {
	Files         []RemoteFile `json:"files"`
	NextPageToken string       `json:"nextPageToken,omitempty"`
}

// Client is the provider client consumed by the import pipeline and the
// listing handler.
type Client interface {
	// ListFiles returns one page of non-trashed files, most recently
	// modified first. If nameFilter is non-empty, only files whose name
	// contains the substring are returned.
	ListFiles(ctx context.Context, pageToken, nameFilter string) (*FileList, error)

	// FetchContent downloads a file's bytes. If exportMIMEType is non-empty
	// the provider converts server-side to that type instead of returning
	// the native bytes. The caller closes the reader.
	FetchContent(ctx context.Context, fileID, exportMIMEType string) (io.ReadCloser, error)
}

// Source produces an authenticated Client for the current credential. It
// fails with auth.ErrUnauthenticated when no valid credential can be
// resolved.
type Source interface {
	Client(ctx context.Context) (Client, error)
}
