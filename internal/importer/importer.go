// Package importer runs the import pipeline: resolve credentials, check for
// a previous import, pick the transfer mode for Google-native documents,
// download, persist to the upload directory, and record metadata.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/acme/dataroom/internal/adapter"
	"github.com/acme/dataroom/internal/model"
	"github.com/acme/dataroom/internal/store"
)

// ErrAlreadyImported is returned when the Drive file was imported before.
// The HTTP layer maps it to 409.
var ErrAlreadyImported = errors.New("file already imported")

const (
	mimeGoogleDoc     = "application/vnd.google-apps.document"
	mimeGoogleSheet   = "application/vnd.google-apps.spreadsheet"
	mimeGoogleSlides  = "application/vnd.google-apps.presentation"
	mimeGoogleDrawing = "application/vnd.google-apps.drawing"

	mimePDF  = "application/pdf"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// exportTargets maps Google-native document types, which have no
// downloadable bytes of their own, to the concrete format they are exported
// to and the file extension that format carries.
var exportTargets = map[string]struct {
	mimeType  string
	extension string
}{
	mimeGoogleDoc:     {mimePDF, ".pdf"},
	mimeGoogleSheet:   {mimeXLSX, ".xlsx"},
	mimeGoogleSlides:  {mimePDF, ".pdf"},
	mimeGoogleDrawing: {mimePDF, ".pdf"},
}

// Request identifies the Drive file to import, with the metadata the client
// saw when listing.
type Request struct {
	FileID   string `json:"file_id"`
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size,omitempty"`
}

// Importer is the import pipeline.
type Importer struct {
	source    adapter.Source
	files     store.FileStore
	uploadDir string
}

// New creates an Importer writing content under uploadDir.
func New(source adapter.Source, files store.FileStore, uploadDir string) *Importer {
	return &Importer{source: source, files: files, uploadDir: uploadDir}
}

// Import runs the pipeline. Each step is a hard gate: a failure aborts with
// no metadata row written (a partially written content file may be left
// behind on a transfer failure; it is unreferenced and harmless).
func (imp *Importer) Import(ctx context.Context, req Request) (*model.ImportedFile, error) {
	client, err := imp.source.Client(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := imp.files.GetByDriveID(ctx, req.FileID); err == nil {
		return nil, ErrAlreadyImported
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking for previous import: %w", err)
	}

	name, mimeType := req.Name, req.MIMEType
	var exportMIME string
	if target, ok := exportTargets[mimeType]; ok {
		exportMIME = target.mimeType
		mimeType = target.mimeType
		if !strings.HasSuffix(name, target.extension) {
			name += target.extension
		}
	}

	content, err := client.FetchContent(ctx, req.FileID, exportMIME)
	if err != nil {
		return nil, fmt.Errorf("fetching content: %w", err)
	}
	defer content.Close()

	if err := os.MkdirAll(imp.uploadDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	// The Drive ID prefix keeps paths unique even when two imports share a
	// display name.
	localPath := filepath.Join(imp.uploadDir, req.FileID+"_"+SanitizeName(name))

	written, err := writeFile(localPath, content)
	if err != nil {
		return nil, fmt.Errorf("writing content: %w", err)
	}

	size := req.Size
	if size == 0 {
		size = written
	}

	file := &model.ImportedFile{
		Name:      name,
		MIMEType:  mimeType,
		Size:      size,
		DriveID:   req.FileID,
		LocalPath: localPath,
		CreatedAt: time.Now().UTC(),
	}
	if err := imp.files.Insert(ctx, file); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// A concurrent import won the race; the unique constraint is
			// the backstop behind the pre-check above.
			return nil, ErrAlreadyImported
		}
		return nil, fmt.Errorf("recording import: %w", err)
	}

	log.Info().Str("name", file.Name).Str("drive_id", file.DriveID).Msg("imported file")
	return file, nil
}

func writeFile(path string, content io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(f, content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return written, err
}

// SanitizeName strips a display name down to characters safe in a filesystem
// component: alphanumerics, space, period, hyphen and underscore, with
// surrounding whitespace trimmed.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
