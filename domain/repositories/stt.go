package repositories

import (
	"context"

	"github.com/satriahrh/sttquickstart/domain/entities"
)

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// RecognizeOnce sends a complete audio buffer and returns the NBest hypotheses
	RecognizeOnce(ctx context.Context, audioData []byte, config AudioConfig) ([]Hypothesis, error)
	// InitTranscribeStreaming opens a continuous recognition session
	InitTranscribeStreaming(ctx context.Context, config AudioConfig, listener EventListener) (SpeechToTextStreaming, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
	Channels   int    `json:"channels"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// Hypothesis is one opaque entry of the NBest list returned by the service
type Hypothesis map[string]interface{}

// SpeechToTextStreaming is an open continuous recognition session
type SpeechToTextStreaming interface {
	// ID returns the session identifier used in emitted events
	ID() string
	// Stream writes one audio chunk
	Stream(data []byte) error
	// End signals the end of audio, waits for the session to stop and releases it
	End() error
	// Done is closed once a terminal event has been emitted
	Done() <-chan struct{}
}

// EventListener receives lifecycle events of a recognition session
type EventListener interface {
	OnEvent(event entities.RecognitionEvent)
}

// EventListenerFunc adapts a function to EventListener
type EventListenerFunc func(event entities.RecognitionEvent)

// OnEvent calls f(event)
func (f EventListenerFunc) OnEvent(event entities.RecognitionEvent) {
	f(event)
}
