package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/sttquickstart/domain/entities"
	"github.com/satriahrh/sttquickstart/domain/repositories"
	"github.com/satriahrh/sttquickstart/internal/audio"
	wsproto "github.com/satriahrh/sttquickstart/internal/websocket"
)

const (
	defaultWSURL            = "ws://localhost:8090/speech/ws"
	defaultHandshakeTimeout = 10 * time.Second
	wsWriteWait             = 10 * time.Second
)

// WebSocketConfig holds configuration for the WebSocketSpeechToText adapter
// Optional fields with defaults:
// - URL: websocket session endpoint (default: "ws://localhost:8090/speech/ws")
// - SubscriptionKey: sent in the key header when set
// - Language: recognition language (default: "en-IN")
// - SampleRate: PCM sample rate (default: 8000)
// - HandshakeTimeout: dial handshake timeout (default: 10s)
// - ChunkSize: audio frame size used by RecognizeOnce (default: 8000)
type WebSocketConfig struct {
	URL              string
	SubscriptionKey  string
	Language         string
	SampleRate       int
	HandshakeTimeout time.Duration
	ChunkSize        int
}

// WebSocketSpeechToText implements SpeechToText over a bidirectional websocket session
type WebSocketSpeechToText struct {
	url             string
	subscriptionKey string
	language        string
	sampleRate      int
	chunkSize       int
	dialer          *gws.Dialer
	logger          *zap.Logger
}

var _ repositories.SpeechToText = (*WebSocketSpeechToText)(nil)

// ValidateWebSocketConfig validates the WebSocketConfig
func ValidateWebSocketConfig(config WebSocketConfig) error {
	if config.URL != "" {
		u, err := url.Parse(config.URL)
		if err != nil {
			return fmt.Errorf("invalid websocket url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("websocket url must use ws or wss, got %q", u.Scheme)
		}
	}

	if config.SampleRate < 0 {
		return fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.ChunkSize < 0 {
		return fmt.Errorf("%w: %d", audio.ErrInvalidChunkSize, config.ChunkSize)
	}

	return nil
}

// NewWebSocketSpeechToText creates a new websocket recognizer
func NewWebSocketSpeechToText(config WebSocketConfig, logger *zap.Logger) (*WebSocketSpeechToText, error) {
	if err := ValidateWebSocketConfig(config); err != nil {
		return nil, err
	}

	wsURL := config.URL
	if wsURL == "" {
		wsURL = defaultWSURL
		logger.Info("Using default websocket url", zap.String("url", wsURL))
	}

	language := config.Language
	if language == "" {
		language = defaultLanguage
	}

	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}

	handshakeTimeout := config.HandshakeTimeout
	if handshakeTimeout == 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}

	chunkSize := config.ChunkSize
	if chunkSize == 0 {
		chunkSize = audio.DefaultChunkSize
	}

	return &WebSocketSpeechToText{
		url:             wsURL,
		subscriptionKey: config.SubscriptionKey,
		language:        language,
		sampleRate:      sampleRate,
		chunkSize:       chunkSize,
		dialer:          &gws.Dialer{HandshakeTimeout: handshakeTimeout},
		logger:          logger,
	}, nil
}

// NewWebSocketConfigFromEnv creates a new WebSocketConfig from environment variables
func NewWebSocketConfigFromEnv() WebSocketConfig {
	config := WebSocketConfig{
		URL:             os.Getenv("SPEECH_WS_URL"),
		SubscriptionKey: os.Getenv("SPEECH_KEY"),
		Language:        os.Getenv("SPEECH_LANGUAGE"),
	}

	if v := os.Getenv("SPEECH_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
			config.SampleRate = rate
		}
	}

	if v := os.Getenv("SPEECH_CHUNK_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil && size > 0 {
			config.ChunkSize = size
		}
	}

	return config
}

// RecognizeOnce streams the whole buffer in ChunkSize frames through one session and collects every recognized phrase
func (w *WebSocketSpeechToText) RecognizeOnce(ctx context.Context, audioData []byte, config repositories.AudioConfig) ([]repositories.Hypothesis, error) {
	var mu sync.Mutex
	hypotheses := []repositories.Hypothesis{}

	collector := repositories.EventListenerFunc(func(event entities.RecognitionEvent) {
		if event.Kind != entities.EventRecognized {
			return
		}
		mu.Lock()
		hypotheses = append(hypotheses, repositories.Hypothesis{
			"Display":  event.Text,
			"Offset":   event.Offset.Milliseconds(),
			"Duration": event.Duration.Milliseconds(),
		})
		mu.Unlock()
	})

	stream, err := w.InitTranscribeStreaming(ctx, config, collector)
	if err != nil {
		return nil, err
	}

	chunker, err := audio.NewChunker(audioData, w.chunkSize)
	if err != nil {
		stream.End()
		return nil, err
	}
	for chunk := range chunker.All() {
		if err := stream.Stream(chunk); err != nil {
			if errors.Is(err, ErrSessionClosed) {
				break
			}
			stream.End()
			return nil, err
		}
	}

	if err := stream.End(); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return hypotheses, nil
}

// InitTranscribeStreaming dials a session; events are read on a background goroutine
func (w *WebSocketSpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig, listener repositories.EventListener) (repositories.SpeechToTextStreaming, error) {
	endpoint, err := w.sessionURL(config)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if w.subscriptionKey != "" {
		header.Set(subscriptionKeyHeader, w.subscriptionKey)
	}

	conn, resp, err := w.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to open websocket session (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to open websocket session: %w", err)
	}

	stream := &wsStream{
		streamSession: newStreamSession(listener, w.logger),
		conn:          conn,
		validator:     wsproto.NewMessageValidator(),
		readerDone:    make(chan struct{}),
	}
	stream.logger.Info("Websocket session opened", zap.String("url", endpoint))

	stream.group.Go(stream.readEvents)
	stream.group.Go(func() error {
		select {
		case <-ctx.Done():
			stream.logger.Warn("Context done, closing websocket session", zap.Error(ctx.Err()))
			stream.closeConn()
			return ctx.Err()
		case <-stream.readerDone:
			return nil
		}
	})

	return stream, nil
}

func (w *WebSocketSpeechToText) sessionURL(config repositories.AudioConfig) (string, error) {
	u, err := url.Parse(w.url)
	if err != nil {
		return "", fmt.Errorf("invalid websocket url: %w", err)
	}

	language := w.language
	if config.Language != "" {
		language = config.Language
	}
	sampleRate := w.sampleRate
	if config.SampleRate > 0 {
		sampleRate = config.SampleRate
	}

	query := u.Query()
	query.Set("language", language)
	query.Set("samplerate", strconv.Itoa(sampleRate))
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// wsStream is one websocket session in flight
type wsStream struct {
	*streamSession
	conn      *gws.Conn
	validator *wsproto.MessageValidator

	group      errgroup.Group
	readerDone chan struct{}

	writeMu sync.Mutex
	ended   bool

	endOnce   sync.Once
	closeOnce sync.Once
	endErr    error
}

// readEvents turns server text frames into events until session_stopped or the connection drops
func (s *wsStream) readEvents() error {
	defer close(s.readerDone)
	defer s.emit(entities.RecognitionEvent{Kind: entities.EventSessionStopped})

	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseNoStatusReceived) {
				s.logger.Info("Websocket session closed by server")
				s.emit(entities.RecognitionEvent{
					Kind:         entities.EventCanceled,
					Reason:       entities.CancellationReasonEndOfStream,
					ErrorCode:    "closed",
					ErrorDetails: "server closed the session",
				})
				return nil
			}
			s.cancel("transport", err.Error())
			return fmt.Errorf("failed to read websocket message: %w", err)
		}

		if messageType != gws.TextMessage {
			s.logger.Warn("Ignoring non-text frame from server", zap.Int("type", messageType))
			continue
		}

		parsed, err := s.validator.ValidateMessage(message)
		if err != nil {
			s.logger.Warn("Ignoring invalid server message",
				zap.ByteString("message", message),
				zap.Error(err))
			continue
		}

		msg, ok := parsed.(*wsproto.EventMessage)
		if !ok {
			continue
		}

		event := msg.ToEvent()
		s.logger.Debug("Received event", zap.String("kind", string(event.Kind)))
		s.emit(event)

		if event.Kind == entities.EventSessionStopped {
			return nil
		}
	}
}

// Stream sends one binary audio frame
func (s *wsStream) Stream(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.ended || s.isDone() {
		return ErrSessionClosed
	}
	if len(data) == 0 {
		return nil
	}

	s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := s.conn.WriteMessage(gws.BinaryMessage, data); err != nil {
		return fmt.Errorf("failed to stream audio data: %w", err)
	}
	return nil
}

// End sends audio_end, waits for the session to stop and closes the connection
func (s *wsStream) End() error {
	s.endOnce.Do(func() {
		s.writeMu.Lock()
		s.ended = true
		if !s.isDone() {
			s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteJSON(wsproto.NewAudioEndMessage()); err != nil {
				s.logger.Warn("Failed to send audio_end", zap.Error(err))
			}
		}
		s.writeMu.Unlock()

		s.endErr = s.group.Wait()

		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		s.conn.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		s.closeConn()

		s.logger.Info("Websocket session ended")
	})
	return s.endErr
}

func (s *wsStream) closeConn() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
}
