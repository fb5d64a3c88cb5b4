package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/acme/dataroom/internal/model"
	"github.com/acme/dataroom/internal/store"
)

// FileHandler serves CRUD over imported files.
type FileHandler struct {
	files store.FileStore
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(files store.FileStore) *FileHandler {
	return &FileHandler{files: files}
}

// List returns all imported files, newest first.
func (h *FileHandler) List(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	files, err := h.files.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list files")
		return errorResponse(http.StatusInternalServerError, "failed to list files"), nil
	}
	return jsonResponse(http.StatusOK, filesBody(files)), nil
}

// Search returns imported files whose name contains the query substring,
// case-insensitively.
func (h *FileHandler) Search(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	files, err := h.files.Search(ctx, req.QueryStringParameters["q"])
	if err != nil {
		log.Error().Err(err).Msg("search failed")
		return errorResponse(http.StatusInternalServerError, "search failed"), nil
	}
	return jsonResponse(http.StatusOK, filesBody(files)), nil
}

// View serves the stored bytes with the file's content type. A row whose
// content has gone missing from disk is reported distinctly from an unknown
// id, but both are 404s.
func (h *FileHandler) View(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	id, resp, ok := h.lookupID(req)
	if !ok {
		return resp, nil
	}

	file, err := h.files.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return errorResponse(http.StatusNotFound, "file not found"), nil
	}
	if err != nil {
		log.Error().Err(err).Int64("id", id).Msg("failed to load file")
		return errorResponse(http.StatusInternalServerError, "failed to load file"), nil
	}

	content, err := os.ReadFile(file.LocalPath)
	if os.IsNotExist(err) {
		return errorResponse(http.StatusNotFound, "file content missing from storage"), nil
	}
	if err != nil {
		log.Error().Err(err).Int64("id", id).Msg("failed to read content")
		return errorResponse(http.StatusInternalServerError, "failed to read content"), nil
	}

	// API Gateway carries binary bodies base64-encoded.
	return events.APIGatewayProxyResponse{
		StatusCode:      http.StatusOK,
		Body:            base64.StdEncoding.EncodeToString(content),
		IsBase64Encoded: true,
		Headers: map[string]string{
			"Content-Type":        file.MIMEType,
			"Content-Disposition": fmt.Sprintf("inline; filename=%q", file.Name),
		},
	}, nil
}

// Delete removes the metadata row and the on-disk content. Content already
// missing from disk does not fail the delete.
func (h *FileHandler) Delete(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	id, resp, ok := h.lookupID(req)
	if !ok {
		return resp, nil
	}

	file, err := h.files.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return errorResponse(http.StatusNotFound, "file not found"), nil
	}
	if err != nil {
		log.Error().Err(err).Int64("id", id).Msg("failed to load file")
		return errorResponse(http.StatusInternalServerError, "failed to load file"), nil
	}

	if err := h.files.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errorResponse(http.StatusNotFound, "file not found"), nil
		}
		log.Error().Err(err).Int64("id", id).Msg("failed to delete file")
		return errorResponse(http.StatusInternalServerError, "failed to delete file"), nil
	}

	if err := os.Remove(file.LocalPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", file.LocalPath).Msg("failed to remove content from disk")
	}

	log.Info().Str("name", file.Name).Int64("id", id).Msg("deleted file")
	return jsonResponse(http.StatusOK, map[string]bool{"success": true}), nil
}

// lookupID parses the id path parameter. The third return is false when the
// response is already decided.
func (h *FileHandler) lookupID(req events.APIGatewayProxyRequest) (int64, events.APIGatewayProxyResponse, bool) {
	raw := req.PathParameters["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errorResponse(http.StatusBadRequest, "invalid file id"), false
	}
	return id, events.APIGatewayProxyResponse{}, true
}

func filesBody(files []model.ImportedFile) any {
	return struct {
		Files []model.ImportedFile `json:"files"`
	}{files}
}
