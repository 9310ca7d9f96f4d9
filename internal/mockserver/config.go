package mockserver

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultPort           = "8090"
	defaultJWTSecret      = "mock-speech-secret"
	defaultRegion         = "centralindia"
	defaultUtteranceBytes = 32000
	defaultIdleTimeout    = 60 * time.Second
	defaultSampleRate     = 8000
)

// Config holds configuration for the mock speech service
// Optional fields with defaults:
// - Port: listen port (default: "8090")
// - SubscriptionKey: accepted key; any non-empty key is accepted when unset
// - JWTSecret: HS256 secret for issued tokens (default: "mock-speech-secret")
// - Region: region claim placed in issued tokens (default: "centralindia")
// - Transcript: fixed transcript; derived from the audio size when unset
// - UtteranceBytes: audio bytes per recognized phrase on the websocket (default: 32000)
// - IdleTimeout: websocket sessions without audio for this long are canceled (default: 60s)
type Config struct {
	Port            string
	SubscriptionKey string
	JWTSecret       string
	Region          string
	Transcript      string
	UtteranceBytes  int
	IdleTimeout     time.Duration
}

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	if config.Port != "" {
		if port, err := strconv.Atoi(config.Port); err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port %q", config.Port)
		}
	}
	if config.UtteranceBytes < 0 {
		return fmt.Errorf("utterance bytes must be positive, got %d", config.UtteranceBytes)
	}
	if config.IdleTimeout < 0 {
		return fmt.Errorf("idle timeout must be positive, got %s", config.IdleTimeout)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.JWTSecret == "" {
		c.JWTSecret = defaultJWTSecret
	}
	if c.Region == "" {
		c.Region = defaultRegion
	}
	if c.UtteranceBytes == 0 {
		c.UtteranceBytes = defaultUtteranceBytes
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	return c
}

// NewConfigFromEnv creates a new Config from environment variables
func NewConfigFromEnv() Config {
	config := Config{
		Port:            os.Getenv("MOCK_SPEECH_PORT"),
		SubscriptionKey: os.Getenv("MOCK_SPEECH_KEY"),
		JWTSecret:       os.Getenv("MOCK_SPEECH_JWT_SECRET"),
		Region:          os.Getenv("SPEECH_REGION"),
		Transcript:      os.Getenv("MOCK_SPEECH_TRANSCRIPT"),
	}

	if v := os.Getenv("MOCK_SPEECH_UTTERANCE_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.UtteranceBytes = n
		}
	}

	if v := os.Getenv("MOCK_SPEECH_IDLE_TIMEOUT_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			config.IdleTimeout = time.Duration(seconds) * time.Second
		}
	}

	return config
}
