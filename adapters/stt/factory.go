package stt

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/satriahrh/sttquickstart/domain/repositories"
)

// Recognizer kinds accepted by NewSpeechToText
const (
	KindREST      = "rest"
	KindGoogle    = "google"
	KindWebSocket = "websocket"
	KindMock      = "mock"
)

// Kinds lists every recognizer NewSpeechToText can build
func Kinds() []string {
	return []string{KindREST, KindGoogle, KindWebSocket, KindMock}
}

// NewSpeechToText builds a recognizer of the given kind, configured from the environment
func NewSpeechToText(kind string, logger *zap.Logger) (repositories.SpeechToText, error) {
	logger = logger.With(zap.String("recognizer", kind))

	var (
		recognizer repositories.SpeechToText
		err        error
	)
	switch kind {
	case KindREST:
		recognizer, err = NewRESTSpeechToText(NewRESTConfigFromEnv(), logger)
	case KindGoogle:
		recognizer, err = NewGoogleSpeechToText(NewGoogleConfigFromEnv(), logger)
	case KindWebSocket:
		recognizer, err = NewWebSocketSpeechToText(NewWebSocketConfigFromEnv(), logger)
	case KindMock:
		recognizer = NewMockSpeechToText(os.Getenv("MOCK_SPEECH_TRANSCRIPT"), logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecognizer, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s recognizer: %w", kind, err)
	}
	return recognizer, nil
}
