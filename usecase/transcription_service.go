package usecase

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/sttquickstart/domain/entities"
	"github.com/satriahrh/sttquickstart/domain/repositories"
	"github.com/satriahrh/sttquickstart/internal/audio"
)

// TranscriptionService drives a recognizer over an audio source
type TranscriptionService struct {
	recognizer  repositories.SpeechToText
	audioConfig repositories.AudioConfig
	chunkSize   int
	listeners   []repositories.EventListener
	logger      *zap.Logger
}

// NewTranscriptionService creates a new transcription service.
// A chunk size of zero uses audio.DefaultChunkSize.
func NewTranscriptionService(
	recognizer repositories.SpeechToText,
	audioConfig repositories.AudioConfig,
	chunkSize int,
	logger *zap.Logger,
) *TranscriptionService {
	if chunkSize == 0 {
		chunkSize = audio.DefaultChunkSize
	}
	return &TranscriptionService{
		recognizer:  recognizer,
		audioConfig: audioConfig,
		chunkSize:   chunkSize,
		logger:      logger,
	}
}

// Observe adds a listener that receives every event of every streaming session
func (s *TranscriptionService) Observe(listener repositories.EventListener) {
	s.listeners = append(s.listeners, listener)
}

// RecognizeOnce reads the whole source, closes it and runs a one-shot recognition
func (s *TranscriptionService) RecognizeOnce(ctx context.Context, src io.ReadCloser) ([]repositories.Hypothesis, error) {
	audioData, err := s.readAndClose(src)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Starting one-shot recognition", zap.Int("audioSize", len(audioData)))

	hypotheses, err := s.recognizer.RecognizeOnce(ctx, audioData, s.audioConfig)
	if err != nil {
		return nil, fmt.Errorf("one-shot recognition failed: %w", err)
	}

	s.logger.Info("One-shot recognition completed", zap.Int("hypotheses", len(hypotheses)))
	return hypotheses, nil
}

// StreamingRecognize writes the source chunk by chunk into a streaming session until
// the audio is exhausted or the session ends, and returns the recognized phrases in
// the order they arrived. The source is closed on every path.
func (s *TranscriptionService) StreamingRecognize(ctx context.Context, src io.ReadCloser) ([]string, error) {
	audioData, err := s.readAndClose(src)
	if err != nil {
		return nil, err
	}

	chunker, err := audio.NewChunker(audioData, s.chunkSize)
	if err != nil {
		return nil, err
	}

	session := entities.NewRecognitionSession(s.audioConfig.Language)
	logger := s.logger.With(zap.String("recognitionID", session.ID))

	dispatcher := NewEventDispatcher()
	dispatcher.On(entities.EventRecognized, func(event entities.RecognitionEvent) {
		if event.Text != "" {
			session.AddTranscript(event.Text)
		}
	})
	stop := func(event entities.RecognitionEvent) {
		if err := session.Stop(event.Kind); err != nil {
			logger.Warn("Unexpected terminal event", zap.String("kind", string(event.Kind)), zap.Error(err))
		}
	}
	dispatcher.On(entities.EventSessionStopped, stop)
	dispatcher.On(entities.EventCanceled, stop)
	for _, listener := range s.listeners {
		dispatcher.Subscribe(listener)
	}

	if err := session.Start(); err != nil {
		return nil, err
	}
	defer session.Close()

	stream, err := s.recognizer.InitTranscribeStreaming(ctx, s.audioConfig, dispatcher)
	if err != nil {
		session.Stop(entities.EventCanceled)
		return nil, fmt.Errorf("failed to start streaming recognition: %w", err)
	}

	logger.Info("Streaming recognition started",
		zap.String("streamID", stream.ID()),
		zap.Int("audioSize", len(audioData)),
		zap.Int("chunks", chunker.Len()))

	if err := s.writeChunks(ctx, chunker, stream, dispatcher, session); err != nil {
		stream.End()
		return session.Results(), err
	}

	if err := stream.End(); err != nil {
		return session.Results(), fmt.Errorf("failed to end streaming recognition: %w", err)
	}

	// End has returned, so no further events arrive
	if session.CurrentState() == entities.SessionStateStreaming {
		session.Stop(entities.EventSessionStopped)
	}

	results := session.Results()
	logger.Info("Streaming recognition completed",
		zap.String("state", string(session.CurrentState())),
		zap.Int("chunksSent", session.ChunksSent),
		zap.Int("transcripts", len(results)))

	return results, nil
}

// writeChunks writes one chunk at a time, stopping early once the session has ended
func (s *TranscriptionService) writeChunks(
	ctx context.Context,
	chunker *audio.Chunker,
	stream repositories.SpeechToTextStreaming,
	dispatcher *EventDispatcher,
	session *entities.RecognitionSession,
) error {
	for chunk := range chunker.All() {
		select {
		case <-dispatcher.Done():
			s.logger.Info("Session ended before audio was exhausted", zap.Int("remainingChunks", chunker.Len()+1))
			return nil
		case <-ctx.Done():
			return fmt.Errorf("streaming recognition interrupted: %w", ctx.Err())
		default:
		}

		if err := stream.Stream(chunk); err != nil {
			select {
			case <-dispatcher.Done():
				return nil
			default:
			}
			return fmt.Errorf("failed to stream audio chunk: %w", err)
		}
		session.RecordChunk(len(chunk))
	}
	return nil
}

// readAndClose reads src fully and closes it exactly once
func (s *TranscriptionService) readAndClose(src io.ReadCloser) ([]byte, error) {
	var once sync.Once
	closeSrc := func() error {
		var err error
		once.Do(func() { err = src.Close() })
		return err
	}
	defer closeSrc()

	audioData, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio source: %w", err)
	}
	if err := closeSrc(); err != nil {
		s.logger.Warn("Failed to close audio source", zap.Error(err))
	}
	return audioData, nil
}
