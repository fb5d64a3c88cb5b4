package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/acme/dataroom/internal/auth"
)

// AuthHandler handles authentication requests.
type AuthHandler struct {
	authService *auth.Service
	frontendURL string
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(s *auth.Service, frontendURL string) *AuthHandler {
	return &AuthHandler{authService: s, frontendURL: frontendURL}
}

// Status reports whether a valid Google credential is available. An expired
// token with a refresh path is refreshed here, so the frontend sees
// authenticated=true without a new consent round.
func (h *AuthHandler) Status(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return jsonResponse(http.StatusOK, map[string]bool{
		"authenticated": h.authService.Authenticated(ctx),
	}), nil
}

// Login returns the Google consent URL for the frontend to navigate to.
func (h *AuthHandler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	authURL, err := h.authService.AuthURL()
	if err != nil {
		log.Error().Err(err).Msg("failed to build auth url")
		return errorResponse(http.StatusInternalServerError, "failed to build authorization URL"), nil
	}
	return jsonResponse(http.StatusOK, map[string]string{"auth_url": authURL}), nil
}

// Callback handles the OAuth2 redirect from Google: verify state, exchange
// the code, persist the tokens, and bounce back to the frontend. Failures
// redirect with an error query parameter rather than rendering an error
// page.
func (h *AuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	code := req.QueryStringParameters["code"]
	if code == "" {
		return redirect(h.frontendURL + "?error=no_code"), nil
	}

	if err := h.authService.VerifyState(req.QueryStringParameters["state"]); err != nil {
		log.Warn().Err(err).Msg("rejected oauth callback state")
		return h.redirectError("invalid_state"), nil
	}

	token, err := h.authService.Exchange(ctx, code)
	if err != nil {
		log.Error().Err(err).Msg("code exchange failed")
		return h.redirectError(err.Error()), nil
	}

	if err := h.authService.SaveToken(ctx, token); err != nil {
		log.Error().Err(err).Msg("failed to save token")
		return h.redirectError(err.Error()), nil
	}

	return redirect(h.frontendURL + "?success=true"), nil
}

// Logout clears the stored token record. The Drive-side grant is untouched.
func (h *AuthHandler) Logout(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if err := h.authService.Logout(ctx); err != nil {
		log.Error().Err(err).Msg("logout failed")
		return errorResponse(http.StatusInternalServerError, "failed to clear credentials"), nil
	}
	return jsonResponse(http.StatusOK, map[string]bool{"success": true}), nil
}

func (h *AuthHandler) redirectError(msg string) events.APIGatewayProxyResponse {
	return redirect(fmt.Sprintf("%s?error=%s", h.frontendURL, url.QueryEscape(msg)))
}
