package model

import "time"

// OAuthToken is the single stored Google OAuth2 credential for this
// deployment. The refresh token is encrypted at rest; the access token is
// short-lived and rewritten on every refresh.
type OAuthToken struct {
	AccessToken           string    `json:"access_token" dynamodbav:"access_token"`
	EncryptedRefreshToken string    `json:"encrypted_refresh_token" dynamodbav:"encrypted_refresh_token"` // empty if Google never granted one
	Expiry                time.Time `json:"expiry" dynamodbav:"expiry"`
	UpdatedAt             time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// ImportedFile is the metadata row for a file imported into the data room.
// DriveID is unique and is the only deduplication mechanism: a second import
// of the same Drive file must fail without mutating state.
type ImportedFile struct {
	ID       int64  `json:"id" dynamodbav:"id"`
	Name     string `json:"name" dynamodbav:"name"`
	MIMEType string `json:"mime_type" dynamodbav:"mime_type"`
	Size     int64  `json:"size" dynamodbav:"size"`
	DriveID  string `json:"drive_id" dynamodbav:"drive_id"`
	// LocalPath is where the bytes live on the server. Never serialized to
	// API clients.
	LocalPath string    `json:"-" dynamodbav:"local_path"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
}
