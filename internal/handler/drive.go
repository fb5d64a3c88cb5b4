package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/acme/dataroom/internal/adapter"
	"github.com/acme/dataroom/internal/auth"
	"github.com/acme/dataroom/internal/importer"
	"github.com/acme/dataroom/internal/model"
)

// DriveHandler serves the remote-file listing and the import endpoint.
type DriveHandler struct {
	source   adapter.Source
	importer *importer.Importer
}

// NewDriveHandler creates a new DriveHandler.
func NewDriveHandler(source adapter.Source, imp *importer.Importer) *DriveHandler {
	return &DriveHandler{source: source, importer: imp}
}

// Files lists one page of the user's Drive files, optionally filtered by a
// name substring.
func (h *DriveHandler) Files(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	client, err := h.source.Client(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			return errorResponse(http.StatusUnauthorized, "not authenticated"), nil
		}
		log.Error().Err(err).Msg("failed to create drive client")
		return errorResponse(http.StatusInternalServerError, err.Error()), nil
	}

	list, err := client.ListFiles(ctx, req.QueryStringParameters["pageToken"], req.QueryStringParameters["query"])
	if err != nil {
		log.Error().Err(err).Msg("failed to list drive files")
		return errorResponse(http.StatusInternalServerError, err.Error()), nil
	}
	return jsonResponse(http.StatusOK, list), nil
}

// Import runs the import pipeline for one Drive file.
func (h *DriveHandler) Import(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var input importer.Request
	if err := json.Unmarshal([]byte(req.Body), &input); err != nil {
		return errorResponse(http.StatusBadRequest, "invalid request body"), nil
	}
	if input.FileID == "" || input.Name == "" {
		return errorResponse(http.StatusBadRequest, "file_id and name are required"), nil
	}

	file, err := h.importer.Import(ctx, input)
	switch {
	case err == nil:
		return jsonResponse(http.StatusOK, struct {
			Success bool                `json:"success"`
			File    *model.ImportedFile `json:"file"`
		}{true, file}), nil
	case errors.Is(err, auth.ErrUnauthenticated):
		return errorResponse(http.StatusUnauthorized, "not authenticated"), nil
	case errors.Is(err, importer.ErrAlreadyImported):
		return errorResponse(http.StatusConflict, "file already imported"), nil
	default:
		log.Error().Err(err).Str("drive_id", input.FileID).Msg("import failed")
		return errorResponse(http.StatusInternalServerError, err.Error()), nil
	}
}
