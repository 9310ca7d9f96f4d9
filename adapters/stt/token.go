package stt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	issueTokenPath = "/sts/v1.0/issueToken"

	// tokens are valid for 10 minutes; refresh a minute early
	defaultTokenLifetime = 10 * time.Minute
	tokenRefreshMargin   = time.Minute
)

// TokenSource exchanges a subscription key for a bearer token and caches it until near expiry
type TokenSource struct {
	endpoint        string
	subscriptionKey string
	client          *http.Client
	logger          *zap.Logger
	now             func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenSource creates a token source for the given issueToken endpoint
func NewTokenSource(endpoint, subscriptionKey string, client *http.Client, logger *zap.Logger) *TokenSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TokenSource{
		endpoint:        endpoint,
		subscriptionKey: subscriptionKey,
		client:          client,
		logger:          logger,
		now:             time.Now,
	}
}

// Token returns a cached token or fetches a new one
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.now().Before(t.expiresAt.Add(-tokenRefreshMargin)) {
		return t.token, nil
	}

	token, err := t.fetch(ctx)
	if err != nil {
		return "", err
	}

	t.token = token
	t.expiresAt = t.expiry(token)
	t.logger.Info("Obtained access token", zap.Time("expiresAt", t.expiresAt))

	return t.token, nil
}

func (t *TokenSource) fetch(ctx context.Context) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set(subscriptionKeyHeader, t.subscriptionKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned error %d: %s", resp.StatusCode, string(body))
	}

	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", fmt.Errorf("token endpoint returned an empty token")
	}
	return token, nil
}

// expiry reads the exp claim without verifying the signature; the service verifies it
func (t *TokenSource) expiry(token string) time.Time {
	fallback := t.now().Add(defaultTokenLifetime)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		t.logger.Debug("Token is not a parseable JWT, assuming default lifetime", zap.Error(err))
		return fallback
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallback
	}
	return exp.Time
}
