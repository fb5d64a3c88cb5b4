// Package app wires the application together and routes API Gateway
// requests to the handlers.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/acme/dataroom/internal/adapter/googledrive"
	"github.com/acme/dataroom/internal/auth"
	"github.com/acme/dataroom/internal/config"
	"github.com/acme/dataroom/internal/crypto"
	"github.com/acme/dataroom/internal/handler"
	"github.com/acme/dataroom/internal/importer"
	"github.com/acme/dataroom/internal/secret"
	"github.com/acme/dataroom/internal/store"
	"github.com/acme/dataroom/internal/store/dynamo"
	"github.com/acme/dataroom/internal/store/memory"
	"github.com/acme/dataroom/internal/store/sqlite"
)

// driveScopes are read-only: the data room never writes back to Drive.
var driveScopes = []string{
	"https://www.googleapis.com/auth/drive.readonly",
	"https://www.googleapis.com/auth/drive.metadata.readonly",
}

// App holds the application dependencies.
type App struct {
	authHandler  *handler.AuthHandler
	driveHandler *handler.DriveHandler
	fileHandler  *handler.FileHandler

	frontendURL        string
	originVerifySecret string
	devMode            bool
}

// NewApp initializes the application dependencies from the environment.
func NewApp(ctx context.Context) *App {
	devMode := os.Getenv("DEV_MODE") == "true"

	// Dev mode never touches AWS; everything else shares one SDK config.
	var sdkCfg aws.Config
	if !devMode || os.Getenv("STORAGE_DRIVER") == "dynamo" {
		var err error
		sdkCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			panic(fmt.Sprintf("unable to load SDK config, %v", err))
		}
	}

	var resolver secret.Resolver
	if devMode {
		resolver = secret.NewEnvResolver()
		log.Info().Msg("using EnvResolver (DEV_MODE=true)")
	} else {
		resolver = secret.NewSSMResolver(ssm.NewFromConfig(sdkCfg))
		log.Info().Msg("using SSMResolver (SSM Parameter Store)")
	}

	cfg := config.Load(ctx, resolver)

	// Metadata store.
	var st store.Store
	switch cfg.StorageDriver {
	case "dynamo":
		st = dynamo.New(dynamodb.NewFromConfig(sdkCfg), cfg.DynamoTable)
		log.Info().Str("table", cfg.DynamoTable).Msg("using DynamoDB store")
	case "memory":
		st = memory.New()
		log.Info().Msg("using in-memory store")
	default:
		var err error
		st, err = sqlite.New(cfg.DBPath)
		if err != nil {
			panic(fmt.Sprintf("unable to open sqlite store, %v", err))
		}
		log.Info().Str("path", cfg.DBPath).Msg("using SQLite store")
	}

	// Refresh-token encryption.
	var encryptor crypto.Encryptor
	if devMode {
		encryptor = crypto.NewMockEncryptor()
		log.Info().Msg("using MockEncryptor (DEV_MODE=true)")
	} else {
		encryptor = crypto.NewKMSService(kms.NewFromConfig(sdkCfg), cfg.KMSKeyID)
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o700); err != nil {
		panic(fmt.Sprintf("unable to create upload directory, %v", err))
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       driveScopes,
		Endpoint:     google.Endpoint,
	}

	authService := auth.NewService(oauthConfig, st, encryptor, cfg.StateSecret)
	source := googledrive.NewProvider(authService)
	imp := importer.New(source, st, cfg.UploadDir)

	return &App{
		authHandler:        handler.NewAuthHandler(authService, cfg.FrontendURL),
		driveHandler:       handler.NewDriveHandler(source, imp),
		fileHandler:        handler.NewFileHandler(st),
		frontendURL:        cfg.FrontendURL,
		originVerifySecret: cfg.OriginVerifySecret,
		devMode:            devMode,
	}
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := req.Path
	method := req.HTTPMethod

	log.Info().Str("method", method).Str("path", path).Msg("request")

	// CORS preflight.
	if method == "OPTIONS" {
		return app.corsResponse(events.APIGatewayProxyResponse{StatusCode: 204}), nil
	}

	// Only CloudFront carries the origin-verify header; direct API Gateway
	// access is rejected when the secret is configured.
	if !app.devMode && app.originVerifySecret != "" {
		if req.Headers["X-Origin-Verify"] != app.originVerifySecret && req.Headers["x-origin-verify"] != app.originVerifySecret {
			log.Warn().Msg("blocked request with missing or invalid X-Origin-Verify header")
			return events.APIGatewayProxyResponse{
				StatusCode: http.StatusForbidden,
				Body:       "Forbidden: Access denied",
			}, nil
		}
	}

	// Strip /api prefix if present (for CloudFront proxying).
	path = strings.TrimPrefix(path, "/api")

	if req.PathParameters == nil {
		req.PathParameters = make(map[string]string)
	}

	// /auth
	if strings.HasPrefix(path, "/auth") {
		if path == "/auth/status" && method == "GET" {
			return app.corsResponse(must(app.authHandler.Status(ctx, req))), nil
		}
		if path == "/auth/login" && method == "GET" {
			return app.corsResponse(must(app.authHandler.Login(ctx, req))), nil
		}
		if path == "/auth/callback" && method == "GET" {
			return app.corsResponse(must(app.authHandler.Callback(ctx, req))), nil
		}
		if path == "/auth/logout" && method == "POST" {
			return app.corsResponse(must(app.authHandler.Logout(ctx, req))), nil
		}
	}

	// /drive
	if strings.HasPrefix(path, "/drive") {
		if path == "/drive/files" && method == "GET" {
			return app.corsResponse(must(app.driveHandler.Files(ctx, req))), nil
		}
		if path == "/drive/import" && method == "POST" {
			return app.corsResponse(must(app.driveHandler.Import(ctx, req))), nil
		}
	}

	// /files
	if strings.HasPrefix(path, "/files") {
		if path == "/files" && method == "GET" {
			return app.corsResponse(must(app.fileHandler.List(ctx, req))), nil
		}
		if path == "/files/search" && method == "GET" {
			return app.corsResponse(must(app.fileHandler.Search(ctx, req))), nil
		}
		// /files/{id}
		if len(path) > len("/files/") {
			parts := strings.Split(strings.Trim(path, "/"), "/")
			req.PathParameters["id"] = parts[len(parts)-1]

			if method == "GET" {
				return app.corsResponse(must(app.fileHandler.View(ctx, req))), nil
			}
			if method == "DELETE" {
				return app.corsResponse(must(app.fileHandler.Delete(ctx, req))), nil
			}
		}
	}

	return app.corsResponse(events.APIGatewayProxyResponse{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf("Not Found: %s %s", method, path),
	}), nil
}

// corsResponse adds CORS headers for the frontend origin.
func (app *App) corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.frontendURL
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,DELETE,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization"
	return resp
}

// must unwraps a handler response, converting a handler error into a 500.
func must(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		log.Error().Err(err).Msg("handler error")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
