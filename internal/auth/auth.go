// Package auth owns the Google OAuth2 flow and the token lifecycle: the
// authorization URL with a signed state parameter, the code exchange, and
// the resolver that turns the stored record into a currently valid access
// token, refreshing and persisting when it has expired.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/acme/dataroom/internal/crypto"
	"github.com/acme/dataroom/internal/model"
	"github.com/acme/dataroom/internal/store"
)

// ErrUnauthenticated is returned when there is no stored credential, or the
// stored credential is expired and cannot be refreshed. The HTTP layer maps
// it to 401.
var ErrUnauthenticated = errors.New("not authenticated")

// stateTTL bounds how long an authorization redirect may take round-trip.
const stateTTL = 10 * time.Minute

// expirySkew treats tokens about to expire as already expired, so a token
// handed to the Drive client survives the request.
const expirySkew = 30 * time.Second

// Service handles the OAuth2 flow and token management for the single
// deployment-wide Google account.
type Service struct {
	oauthConfig *oauth2.Config
	tokens      store.TokenStore
	encryptor   crypto.Encryptor
	stateSecret []byte

	// Serializes refresh-on-read so two concurrent requests cannot both hit
	// the token endpoint.
	mu sync.Mutex
}

// NewService creates a Service. The oauth2.Config is constructed by the
// caller from environment configuration.
func NewService(oauthConfig *oauth2.Config, tokens store.TokenStore, encryptor crypto.Encryptor, stateSecret string) *Service {
	return &Service{
		oauthConfig: oauthConfig,
		tokens:      tokens,
		encryptor:   encryptor,
		stateSecret: []byte(stateSecret),
	}
}

// Config returns the OAuth2 config.
func (s *Service) Config() *oauth2.Config {
	return s.oauthConfig
}

// AuthURL returns the Google consent URL. Offline access and forced consent
// ensure Google issues a refresh token. The state parameter is a short-lived
// signed token so the callback can reject forged redirects.
func (s *Service) AuthURL() (string, error) {
	state, err := s.newState()
	if err != nil {
		return "", err
	}
	return s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// newState mints the signed OAuth state parameter.
func (s *Service) newState() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"jti": uuid.New().String(),
		"iat": now.Unix(),
		"exp": now.Add(stateTTL).Unix(),
	}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.stateSecret)
	if err != nil {
		return "", fmt.Errorf("signing state: %w", err)
	}
	return state, nil
}

// VerifyState checks the state parameter returned by Google.
func (s *Service) VerifyState(state string) error {
	token, err := jwt.Parse(state, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.stateSecret, nil
	})
	if err != nil {
		return fmt.Errorf("invalid state: %w", err)
	}
	if !token.Valid {
		return errors.New("invalid state")
	}
	return nil
}

// Exchange exchanges the authorization code for tokens.
func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return s.oauthConfig.Exchange(ctx, code)
}

// SaveToken persists the token record, encrypting the refresh token at rest.
// Google omits the refresh token on re-consent, so an existing one is
// preserved when the new token has none.
func (s *Service) SaveToken(ctx context.Context, token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, token)
}

func (s *Service) saveLocked(ctx context.Context, token *oauth2.Token) error {
	record := &model.OAuthToken{
		AccessToken: token.AccessToken,
		Expiry:      token.Expiry,
	}

	if token.RefreshToken != "" {
		encrypted, err := s.encryptor.Encrypt(ctx, token.RefreshToken)
		if err != nil {
			return fmt.Errorf("encrypting refresh token: %w", err)
		}
		record.EncryptedRefreshToken = encrypted
	} else if existing, err := s.tokens.GetToken(ctx); err == nil {
		record.EncryptedRefreshToken = existing.EncryptedRefreshToken
	}

	if err := s.tokens.SaveToken(ctx, record); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

// Resolve produces a currently valid access token, refreshing via Google's
// token endpoint when the stored one has expired. A successful refresh is
// persisted before the token is returned, so the store never serves a stale
// token afterwards. Every failure mode short of a storage fault surfaces as
// ErrUnauthenticated; the caller decides the response code.
func (s *Service) Resolve(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.tokens.GetToken(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("loading token: %w", err)
	}

	var refreshToken string
	if record.EncryptedRefreshToken != "" {
		refreshToken, err = s.encryptor.Decrypt(ctx, record.EncryptedRefreshToken)
		if err != nil {
			return nil, fmt.Errorf("decrypting refresh token: %w", err)
		}
	}

	// An unknown expiry is treated as expired rather than trusted.
	if !record.Expiry.IsZero() && time.Now().Add(expirySkew).Before(record.Expiry) {
		return &oauth2.Token{
			AccessToken:  record.AccessToken,
			RefreshToken: refreshToken,
			Expiry:       record.Expiry,
			TokenType:    "Bearer",
		}, nil
	}

	if refreshToken == "" {
		// Expired and no refresh path; the user must re-run the flow.
		return nil, ErrUnauthenticated
	}

	fresh, err := s.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		// Network error or revoked grant; either way the caller cannot
		// proceed with this credential.
		return nil, fmt.Errorf("%w: refresh failed: %v", ErrUnauthenticated, err)
	}

	if fresh.RefreshToken == "" {
		fresh.RefreshToken = refreshToken
	}
	if err := s.saveLocked(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Authenticated reports whether a valid credential can currently be
// resolved. A refresh is attempted as a side effect, matching Resolve.
func (s *Service) Authenticated(ctx context.Context) bool {
	_, err := s.Resolve(ctx)
	return err == nil
}

// HTTPClient returns an http.Client authorized with the resolved credential.
func (s *Service) HTTPClient(ctx context.Context) (*http.Client, error) {
	token, err := s.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)), nil
}

// Logout deletes the stored token record.
func (s *Service) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tokens.DeleteToken(ctx); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	return nil
}
