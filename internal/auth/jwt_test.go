package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewTokenIssuer_EmptySecret(t *testing.T) {
	_, err := NewTokenIssuer("", time.Minute)
	if !errors.Is(err, ErrEmptySecret) {
		t.Errorf("Expected ErrEmptySecret, got %v", err)
	}
}

func TestTokenIssuer_GenerateAndValidate(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", 0)
	if err != nil {
		t.Fatalf("Failed to create issuer: %v", err)
	}

	token, expiresAt, err := issuer.GenerateAccessToken("centralindia")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if got := time.Until(expiresAt); got < 9*time.Minute || got > AccessTokenLifetime {
		t.Errorf("Expected expiry about 10 minutes out, got %s", got)
	}

	claims, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}

	if claims.Region != "centralindia" {
		t.Errorf("Expected region centralindia, got %s", claims.Region)
	}
	if claims.Scope != "speechservices" {
		t.Errorf("Expected scope speechservices, got %s", claims.Scope)
	}
	if claims.ID == "" {
		t.Error("Expected token ID to be set")
	}
}

func TestTokenIssuer_RejectsForeignSecret(t *testing.T) {
	issuer, _ := NewTokenIssuer("secret-a", time.Minute)
	other, _ := NewTokenIssuer("secret-b", time.Minute)

	token, _, err := other.GenerateAccessToken("")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if _, err := issuer.ValidateToken(token); !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		t.Errorf("Expected signature error, got %v", err)
	}
}

func TestTokenIssuer_RejectsExpired(t *testing.T) {
	issuer, _ := NewTokenIssuer("test-secret", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, _, err := issuer.GenerateAccessToken("")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	issuer.now = time.Now
	if _, err := issuer.ValidateToken(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("Expected expired error, got %v", err)
	}
}
