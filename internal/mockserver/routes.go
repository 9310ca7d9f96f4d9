package mockserver

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/sttquickstart/domain/entities"
)

const subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NBestEntry is one hypothesis of a detailed recognition result
type NBestEntry struct {
	Confidence float64 `json:"Confidence"`
	Lexical    string  `json:"Lexical"`
	ITN        string  `json:"ITN"`
	MaskedITN  string  `json:"MaskedITN"`
	Display    string  `json:"Display"`
}

// RecognitionResult is the body of a recognition response
type RecognitionResult struct {
	RecognitionStatus string       `json:"RecognitionStatus"`
	DisplayText       string       `json:"DisplayText,omitempty"`
	Offset            int64        `json:"Offset"`
	Duration          int64        `json:"Duration"`
	NBest             []NBestEntry `json:"NBest,omitempty"`
}

// InitRoutes initializes all mock service routes
func (s *Server) InitRoutes() {
	s.GET("/health", s.health)
	s.POST("/sts/v1.0/issueToken", s.issueToken)

	recognition := s.Group("/speech", s.authenticate)
	recognition.POST("/recognition/:mode/cognitiveservices/v1", s.recognize)
	recognition.GET("/ws", s.handleWebSocket)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"service":        "mock-speech",
		"activeSessions": s.hub.Count(),
	})
}

func (s *Server) validKey(key string) bool {
	if key == "" {
		return false
	}
	return s.config.SubscriptionKey == "" || key == s.config.SubscriptionKey
}

// issueToken exchanges a subscription key for a short-lived access token
func (s *Server) issueToken(c echo.Context) error {
	if !s.validKey(c.Request().Header.Get(subscriptionKeyHeader)) {
		s.logger.Warn("Token request rejected: invalid subscription key")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_key",
			Message: "A valid subscription key is required",
		})
	}

	token, expiresAt, err := s.issuer.GenerateAccessToken(s.config.Region)
	if err != nil {
		s.logger.Error("Failed to generate access token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate access token",
		})
	}

	s.logger.Info("Issued access token", zap.Time("expiresAt", expiresAt))
	return c.String(http.StatusOK, token)
}

// authenticate accepts either the subscription key header or a bearer token
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.validKey(c.Request().Header.Get(subscriptionKeyHeader)) {
			return next(c)
		}

		authHeader := c.Request().Header.Get("Authorization")
		if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok && token != "" {
			if _, err := s.issuer.ValidateToken(token); err != nil {
				s.logger.Warn("Request rejected: invalid token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired access token",
				})
			}
			return next(c)
		}

		s.logger.Warn("Request rejected: missing credentials", zap.String("path", c.Path()))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_credentials",
			Message: "Subscription key or bearer token is required",
		})
	}
}

// recognize transcribes a whole (possibly chunked) request body
func (s *Server) recognize(c echo.Context) error {
	mode := c.Param("mode")
	switch mode {
	case "conversation", "interactive", "dictation":
	default:
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "unknown_mode",
			Message: "Mode must be conversation, interactive or dictation",
		})
	}

	language := c.QueryParam("language")
	if language == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_language",
			Message: "The language query parameter is required",
		})
	}

	format := c.QueryParam("format")
	if format == "" {
		format = "simple"
	}
	if format != "simple" && format != "detailed" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_format",
			Message: "Format must be simple or detailed",
		})
	}

	sampleRate, ok := parseAudioContentType(c.Request().Header.Get(echo.HeaderContentType))
	if !ok {
		return c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{
			Error:   "unsupported_media_type",
			Message: "Content-Type must be an audio type",
		})
	}

	started := time.Now()
	audioData, err := io.ReadAll(c.Request().Body)
	if err != nil {
		s.logger.Error("Failed to read audio body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "read_failed",
			Message: "Failed to read audio body",
		})
	}

	s.logger.Info("Recognition request",
		zap.String("mode", mode),
		zap.String("language", language),
		zap.String("format", format),
		zap.Int("audioSize", len(audioData)),
		zap.Strings("transferEncoding", c.Request().TransferEncoding),
		zap.Duration("uploadTime", time.Since(started)))

	if len(audioData) == 0 {
		return c.JSON(http.StatusOK, RecognitionResult{RecognitionStatus: "InitialSilenceTimeout"})
	}

	text := transcriptFor(len(audioData), s.config.Transcript)
	result := RecognitionResult{
		RecognitionStatus: "Success",
		Duration:          ticks(audioDuration(len(audioData), sampleRate)),
	}

	if format == "simple" {
		result.DisplayText = text
		return c.JSON(http.StatusOK, result)
	}

	result.DisplayText = text
	result.NBest = []NBestEntry{
		{
			Confidence: 0.93,
			Lexical:    lexical(text),
			ITN:        lexical(text),
			MaskedITN:  lexical(text),
			Display:    text,
		},
		{
			Confidence: 0.61,
			Lexical:    partialTranscript(text, 0.5),
			ITN:        partialTranscript(text, 0.5),
			MaskedITN:  partialTranscript(text, 0.5),
			Display:    partialTranscript(text, 0.5),
		},
	}
	return c.JSON(http.StatusOK, result)
}

// handleWebSocket upgrades to a streaming recognition session
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	sampleRate, _ := strconv.Atoi(c.QueryParam("samplerate"))
	client := newClient(s.hub, conn, sampleRate)

	select {
	case s.hub.register <- client:
	case <-s.hub.stop:
		conn.Close()
		return nil
	}

	client.mu.Lock()
	client.enqueue(entities.RecognitionEvent{Kind: entities.EventSessionStarted})
	client.mu.Unlock()

	go client.writePump()
	go client.readPump()

	return nil
}

// parseAudioContentType accepts any audio/* Content-Type and returns its samplerate
// parameter, or 0. Headers like "audio/wav; codecs=audio/pcm; samplerate=8000" carry
// an unquoted '/' in a parameter value, which mime.ParseMediaType rejects.
func parseAudioContentType(header string) (int, bool) {
	if mediaType, params, err := mime.ParseMediaType(header); err == nil {
		if !strings.HasPrefix(mediaType, "audio/") {
			return 0, false
		}
		sampleRate, _ := strconv.Atoi(params["samplerate"])
		return sampleRate, true
	}

	parts := strings.Split(header, ";")
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(parts[0])), "audio/") {
		return 0, false
	}

	sampleRate := 0
	for _, part := range parts[1:] {
		key, value, found := strings.Cut(part, "=")
		if !found || !strings.EqualFold(strings.TrimSpace(key), "samplerate") {
			continue
		}
		sampleRate, _ = strconv.Atoi(strings.Trim(strings.TrimSpace(value), `"`))
	}
	return sampleRate, true
}
