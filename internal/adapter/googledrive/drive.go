// Package googledrive implements adapter.Client on the Drive v3 API.
package googledrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/acme/dataroom/internal/adapter"
	"github.com/acme/dataroom/internal/auth"
)

// pageSize is the fixed page size for listings.
const pageSize = 50

const listFields = "nextPageToken, files(id, name, mimeType, size, modifiedTime, iconLink, thumbnailLink)"

// Provider implements adapter.Source: it resolves credentials through the
// auth service and hands out a Drive-backed client.
type Provider struct {
	authService *auth.Service
}

// NewProvider creates a Provider.
func NewProvider(authService *auth.Service) *Provider {
	return &Provider{authService: authService}
}

// Client returns an adapter.Client authorized with the current credential.
func (p *Provider) Client(ctx context.Context) (adapter.Client, error) {
	httpClient, err := p.authService.HTTPClient(ctx)
	if err != nil {
		return nil, err
	}

	svc, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return &driveClient{service: svc}, nil
}

// driveClient implements adapter.Client.
type driveClient struct {
	service *drive.Service
}

// ListFiles lists non-trashed files, most recently modified first.
func (c *driveClient) ListFiles(ctx context.Context, pageToken, nameFilter string) (*adapter.FileList, error) {
	q := "trashed = false"
	if nameFilter != "" {
		q += fmt.Sprintf(" and name contains '%s'", escapeQuery(nameFilter))
	}

	call := c.service.Files.List().
		Context(ctx).
		Q(q).
		PageSize(pageSize).
		OrderBy("modifiedTime desc").
		Fields(googleapi.Field(listFields))
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	r, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("unable to list files: %w", err)
	}

	list := &adapter.FileList{Files: []adapter.RemoteFile{}, NextPageToken: r.NextPageToken}
	for _, f := range r.Files {
		modTime, _ := time.Parse(time.RFC3339, f.ModifiedTime)
		list.Files = append(list.Files, adapter.RemoteFile{
			ID:            f.Id,
			Name:          f.Name,
			MIMEType:      f.MimeType,
			Size:          f.Size,
			ModifiedTime:  modTime,
			IconLink:      f.IconLink,
			ThumbnailLink: f.ThumbnailLink,
		})
	}
	return list, nil
}

// FetchContent downloads a file, exporting server-side when exportMIMEType
// is given (Google-native documents have no downloadable bytes of their own).
func (c *driveClient) FetchContent(ctx context.Context, fileID, exportMIMEType string) (io.ReadCloser, error) {
	if exportMIMEType != "" {
		r, err := c.service.Files.Export(fileID, exportMIMEType).Context(ctx).Download()
		if err != nil {
			return nil, mapDriveError(err, "unable to export file")
		}
		return r.Body, nil
	}

	r, err := c.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, mapDriveError(err, "unable to download file")
	}
	return r.Body, nil
}

func mapDriveError(err error, msg string) error {
	if isNotFound(err) {
		return adapter.ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isNotFound(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == 404
	}
	return false
}

// escapeQuery escapes a user-supplied substring for embedding in a Drive
// query string literal. Backslashes must be escaped before apostrophes, or
// an apostrophe in the input would break out of the quoted literal.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
