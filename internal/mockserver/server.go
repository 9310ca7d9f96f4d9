// Package mockserver imitates the speech service locally: the one-shot and
// chunked recognition endpoints, the token endpoint and a websocket session
// endpoint, so every recognizer can run without cloud credentials.
package mockserver

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/sttquickstart/internal/auth"
)

// Server is the mock speech service
type Server struct {
	*echo.Echo

	config Config
	hub    *Hub
	issuer *auth.TokenIssuer
	logger *zap.Logger
}

// New creates the mock service with its routes registered and the session hub running
func New(config Config, logger *zap.Logger) (*Server, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	issuer, err := auth.NewTokenIssuer(config.JWTSecret, auth.AccessTokenLifetime)
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}

	if config.SubscriptionKey == "" {
		logger.Info("No subscription key configured, accepting any key")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("Request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	}))

	s := &Server{
		Echo:   e,
		config: config,
		hub:    NewHub(config, logger),
		issuer: issuer,
		logger: logger,
	}
	s.InitRoutes()
	go s.hub.Run()

	return s, nil
}

// Addr returns the listen address for the configured port
func (s *Server) Addr() string {
	return ":" + s.config.Port
}

// Shutdown stops the session hub and gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	return s.Echo.Shutdown(ctx)
}
