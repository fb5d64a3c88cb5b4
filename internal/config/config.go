// Package config centralizes environment configuration. Every knob has a
// default that works for local development; secrets are pulled through
// secret.Resolver so production reads SSM Parameter Store and DEV_MODE reads
// plain environment variables.
package config

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/acme/dataroom/internal/secret"
)

// Config holds everything the application needs from the environment.
type Config struct {
	GoogleClientID     string
	GoogleClientSecret string
	RedirectURL        string
	FrontendURL        string

	// StateSecret signs the OAuth state parameter.
	StateSecret string

	// OriginVerifySecret, when set, is required in the X-Origin-Verify
	// header of every request (CloudFront-only access). Empty disables the
	// check.
	OriginVerifySecret string

	// StorageDriver selects the metadata store: sqlite, dynamo or memory.
	StorageDriver string
	DBPath        string
	DynamoTable   string

	UploadDir string
	KMSKeyID  string
	DevMode   bool
}

// Load reads the environment and resolves secrets. Missing secrets are
// logged, not fatal; the affected endpoints fail at request time instead of
// preventing startup.
func Load(ctx context.Context, resolver secret.Resolver) *Config {
	cfg := &Config{
		GoogleClientID: os.Getenv("GOOGLE_CLIENT_ID"),
		RedirectURL:    envOr("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/auth/callback"),
		FrontendURL:    envOr("FRONTEND_URL", "http://localhost:5173"),
		StorageDriver:  envOr("STORAGE_DRIVER", "sqlite"),
		DBPath:         envOr("DATAROOM_DB_PATH", "dataroom.db"),
		DynamoTable:    envOr("DATAROOM_TABLE", "DataroomFiles"),
		UploadDir:      envOr("UPLOAD_DIR", "uploads"),
		KMSKeyID:       envOr("KMS_KEY_ID", "alias/dataroom-token-key"),
		DevMode:        os.Getenv("DEV_MODE") == "true",
	}

	var err error
	cfg.GoogleClientSecret, err = resolver.GetSecret(ctx, envOr("GOOGLE_CLIENT_SECRET_PARAM", "/dataroom/google-client-secret"))
	if err != nil {
		log.Warn().Err(err).Msg("failed to resolve GOOGLE_CLIENT_SECRET")
	}

	cfg.StateSecret, err = resolver.GetSecret(ctx, envOr("STATE_SECRET_PARAM", "/dataroom/state-secret"))
	if err != nil {
		log.Warn().Err(err).Msg("failed to resolve STATE_SECRET")
		cfg.StateSecret = "default-dev-secret"
	}

	cfg.OriginVerifySecret, err = resolver.GetSecret(ctx, envOr("ORIGIN_VERIFY_SECRET_PARAM", "/dataroom/origin-verify-secret"))
	if err != nil && !cfg.DevMode {
		log.Warn().Err(err).Msg("failed to resolve ORIGIN_VERIFY_SECRET; origin check disabled")
	}

	return cfg
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
