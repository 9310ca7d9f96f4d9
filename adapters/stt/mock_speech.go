package stt

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/sttquickstart/domain/entities"
	"github.com/satriahrh/sttquickstart/domain/repositories"
	"github.com/satriahrh/sttquickstart/internal/transcript"
)

// MockSpeechToText is an in-process recognizer returning canned phrases
type MockSpeechToText struct {
	fixed  string
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

// NewMockSpeechToText creates a new mock recognizer. Without a fixed phrase one is picked by audio size.
func NewMockSpeechToText(fixed string, logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{
		fixed:  fixed,
		logger: logger,
	}
}

func (m *MockSpeechToText) transcriptFor(size int) string {
	if m.fixed != "" {
		return m.fixed
	}
	return transcript.Canned(size)
}

// RecognizeOnce returns a single hypothesis, or none for empty audio
func (m *MockSpeechToText) RecognizeOnce(ctx context.Context, audioData []byte, config repositories.AudioConfig) ([]repositories.Hypothesis, error) {
	m.logger.Info("Processing mock one-shot recognition",
		zap.Int("audioSize", len(audioData)),
		zap.Int("sampleRate", config.SampleRate),
		zap.String("language", config.Language))

	if len(audioData) == 0 {
		return []repositories.Hypothesis{}, nil
	}

	return []repositories.Hypothesis{
		{
			"Display":    m.transcriptFor(len(audioData)),
			"Confidence": 0.9,
		},
	}, nil
}

// InitTranscribeStreaming creates a new mock streaming session
func (m *MockSpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig, listener repositories.EventListener) (repositories.SpeechToTextStreaming, error) {
	m.logger.Info("Initializing mock streaming transcription",
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding),
		zap.String("language", config.Language))

	stream := &mockStream{
		streamSession: newStreamSession(listener, m.logger),
		recognizer:    m,
	}
	stream.emit(entities.RecognitionEvent{Kind: entities.EventSessionStarted})
	return stream, nil
}

// mockStream emits a partial result per chunk and one final result on End
type mockStream struct {
	*streamSession
	recognizer *MockSpeechToText

	mu       sync.Mutex
	ended    bool
	received int
}

func (s *mockStream) Stream(data []byte) error {
	s.mu.Lock()
	if s.ended || s.isDone() {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.received += len(data)
	received := s.received
	s.mu.Unlock()

	s.logger.Debug("Processing mock audio chunk", zap.Int("size", len(data)))
	s.emit(entities.RecognitionEvent{
		Kind: entities.EventRecognizing,
		Text: s.recognizer.transcriptFor(received),
	})
	return nil
}

func (s *mockStream) End() error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil
	}
	s.ended = true
	received := s.received
	s.mu.Unlock()

	if received > 0 {
		text := s.recognizer.transcriptFor(received)
		s.logger.Info("Ending mock transcription stream", zap.String("result", text))
		s.emit(entities.RecognitionEvent{Kind: entities.EventRecognized, Text: text})
	}
	s.emit(entities.RecognitionEvent{Kind: entities.EventSessionStopped})
	return nil
}
