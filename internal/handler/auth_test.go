package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"golang.org/x/oauth2"

	"github.com/acme/dataroom/internal/auth"
	"github.com/acme/dataroom/internal/crypto"
	"github.com/acme/dataroom/internal/handler"
	"github.com/acme/dataroom/internal/store/memory"
)

const testFrontend = "http://localhost:5173"

func authFixture() (*handler.AuthHandler, *auth.Service) {
	svc := auth.NewService(
		&oauth2.Config{
			ClientID:     "test-client-id",
			ClientSecret: "test-client-secret",
			RedirectURL:  "http://localhost:8080/api/auth/callback",
			Endpoint: oauth2.Endpoint{
				AuthURL: "https://accounts.google.com/o/oauth2/auth",
			},
		},
		memory.New(),
		crypto.NewMockEncryptor(),
		"test-state-secret",
	)
	return handler.NewAuthHandler(svc, testFrontend), svc
}

func TestAuthHandler_Status(t *testing.T) {
	h, svc := authFixture()
	ctx := context.Background()

	resp, err := h.Status(ctx, events.APIGatewayProxyRequest{})
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body map[string]bool
	json.Unmarshal([]byte(resp.Body), &body)
	if body["authenticated"] {
		t.Error("Expected authenticated=false with no stored token")
	}

	if err := svc.SaveToken(ctx, &oauth2.Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	resp, _ = h.Status(ctx, events.APIGatewayProxyRequest{})
	json.Unmarshal([]byte(resp.Body), &body)
	if !body["authenticated"] {
		t.Error("Expected authenticated=true with a valid token")
	}
}

func TestAuthHandler_Login(t *testing.T) {
	h, _ := authFixture()

	resp, err := h.Login(context.Background(), events.APIGatewayProxyRequest{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body map[string]string
	json.Unmarshal([]byte(resp.Body), &body)
	if !strings.HasPrefix(body["auth_url"], "https://accounts.google.com/") {
		t.Errorf("Expected a Google auth URL, got %q", body["auth_url"])
	}
	if !strings.Contains(body["auth_url"], "state=") {
		t.Error("Expected a state parameter in the auth URL")
	}
}

func TestAuthHandler_Callback_NoCode(t *testing.T) {
	h, _ := authFixture()

	resp, _ := h.Callback(context.Background(), events.APIGatewayProxyRequest{})
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected 302, got %d", resp.StatusCode)
	}
	if resp.Headers["Location"] != testFrontend+"?error=no_code" {
		t.Errorf("Unexpected redirect: %s", resp.Headers["Location"])
	}
}

func TestAuthHandler_Callback_InvalidState(t *testing.T) {
	h, _ := authFixture()

	resp, _ := h.Callback(context.Background(), events.APIGatewayProxyRequest{
		QueryStringParameters: map[string]string{
			"code":  "auth-code",
			"state": "forged-state",
		},
	})
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected 302, got %d", resp.StatusCode)
	}
	if resp.Headers["Location"] != testFrontend+"?error=invalid_state" {
		t.Errorf("Unexpected redirect: %s", resp.Headers["Location"])
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	h, svc := authFixture()
	ctx := context.Background()

	if err := svc.SaveToken(ctx, &oauth2.Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	resp, err := h.Logout(ctx, events.APIGatewayProxyRequest{})
	if err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	if svc.Authenticated(ctx) {
		t.Error("Expected authenticated=false after logout")
	}
}
