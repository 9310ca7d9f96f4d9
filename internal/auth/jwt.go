package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenLifetime matches the lifetime of tokens issued by the speech service
const AccessTokenLifetime = 10 * time.Minute

// ErrEmptySecret is returned when an issuer is built without a signing secret
var ErrEmptySecret = errors.New("jwt secret must not be empty")

// AccessClaims represents the claims in an issued access token
type AccessClaims struct {
	Region string `json:"region,omitempty"`
	Scope  string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates access tokens with a shared HS256 secret
type TokenIssuer struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewTokenIssuer creates a new token issuer
func NewTokenIssuer(secret string, lifetime time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if lifetime <= 0 {
		lifetime = AccessTokenLifetime
	}
	return &TokenIssuer{
		secret:   []byte(secret),
		lifetime: lifetime,
		now:      time.Now,
	}, nil
}

// GenerateAccessToken generates a speech access token for the given region
func (i *TokenIssuer) GenerateAccessToken(region string) (string, time.Time, error) {
	issuedAt := i.now()
	expiresAt := issuedAt.Add(i.lifetime)

	claims := &AccessClaims{
		Region: region,
		Scope:  "speechservices",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates an access token and returns the claims
func (i *TokenIssuer) ValidateToken(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*AccessClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}
