package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/status"

	"github.com/satriahrh/sttquickstart/domain/entities"
	"github.com/satriahrh/sttquickstart/domain/repositories"
)

const (
	defaultGoogleEncoding        = "LINEAR16"
	defaultGoogleMaxAlternatives = 5
)

// speechClient is the subset of *speech.Client used by the adapter
type speechClient interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	StreamingRecognize(ctx context.Context, opts ...gax.CallOption) (speechpb.Speech_StreamingRecognizeClient, error)
	Close() error
}

// GoogleConfig holds configuration for the Google Cloud Speech adapter.
// Credentials come from Application Default Credentials unless CredentialsFile is set.
type GoogleConfig struct {
	Endpoint        string
	CredentialsFile string
	Language        string
	SampleRate      int
	Encoding        string
	Model           string
	MaxAlternatives int
	// DisableInterimResults turns off recognizing events during streaming
	DisableInterimResults bool
}

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	newClient       func(ctx context.Context) (speechClient, error)
	language        string
	sampleRate      int
	encoding        string
	model           string
	maxAlternatives int
	interimResults  bool
	logger          *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates a recognizer backed by the Cloud Speech client library
func NewGoogleSpeechToText(config GoogleConfig, logger *zap.Logger) (*GoogleSpeechToText, error) {
	var opts []option.ClientOption
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint))
	}
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}

	factory := func(ctx context.Context) (speechClient, error) {
		client, err := speech.NewClient(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	return newGoogleSpeechToText(config, factory, logger)
}

func newGoogleSpeechToText(config GoogleConfig, factory func(ctx context.Context) (speechClient, error), logger *zap.Logger) (*GoogleSpeechToText, error) {
	if config.MaxAlternatives < 0 {
		return nil, fmt.Errorf("max alternatives must be positive, got %d", config.MaxAlternatives)
	}

	encoding := config.Encoding
	if encoding == "" {
		encoding = defaultGoogleEncoding
	}
	if _, err := getAudioEncoding(encoding); err != nil {
		return nil, err
	}

	language := config.Language
	if language == "" {
		language = defaultLanguage
		logger.Info("Using default language", zap.String("language", language))
	}

	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}

	maxAlternatives := config.MaxAlternatives
	if maxAlternatives == 0 {
		maxAlternatives = defaultGoogleMaxAlternatives
	}

	return &GoogleSpeechToText{
		newClient:       factory,
		language:        language,
		sampleRate:      sampleRate,
		encoding:        encoding,
		model:           config.Model,
		maxAlternatives: maxAlternatives,
		interimResults:  !config.DisableInterimResults,
		logger:          logger,
	}, nil
}

// NewGoogleConfigFromEnv creates a new GoogleConfig from environment variables
func NewGoogleConfigFromEnv() GoogleConfig {
	config := GoogleConfig{
		Endpoint:        os.Getenv("GOOGLE_SPEECH_ENDPOINT"),
		CredentialsFile: os.Getenv("GOOGLE_SPEECH_CREDENTIALS_FILE"),
		Language:        os.Getenv("SPEECH_LANGUAGE"),
		Model:           os.Getenv("GOOGLE_SPEECH_MODEL"),
	}

	if v := os.Getenv("SPEECH_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
			config.SampleRate = rate
		}
	}

	if v := os.Getenv("GOOGLE_SPEECH_MAX_ALTERNATIVES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxAlternatives = n
		}
	}

	if v := os.Getenv("GOOGLE_SPEECH_INTERIM_RESULTS"); v != "" {
		if interim, err := strconv.ParseBool(v); err == nil {
			config.DisableInterimResults = !interim
		}
	}

	return config
}

func (g *GoogleSpeechToText) recognitionConfig(config repositories.AudioConfig) (*speechpb.RecognitionConfig, error) {
	encodingName := g.encoding
	if config.Encoding != "" {
		encodingName = config.Encoding
	}
	encoding, err := getAudioEncoding(encodingName)
	if err != nil {
		return nil, err
	}

	language := g.language
	if config.Language != "" {
		language = config.Language
	}

	sampleRate := g.sampleRate
	if config.SampleRate > 0 {
		sampleRate = config.SampleRate
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:              encoding,
		SampleRateHertz:       int32(sampleRate),
		LanguageCode:          language,
		MaxAlternatives:       int32(g.maxAlternatives),
		EnableWordTimeOffsets: true,
		Model:                 g.model,
	}
	if config.Channels > 0 {
		recognitionConfig.AudioChannelCount = int32(config.Channels)
	}
	return recognitionConfig, nil
}

// RecognizeOnce performs synchronous recognition of the whole buffer
func (g *GoogleSpeechToText) RecognizeOnce(ctx context.Context, audioData []byte, config repositories.AudioConfig) ([]repositories.Hypothesis, error) {
	recognitionConfig, err := g.recognitionConfig(config)
	if err != nil {
		return nil, err
	}

	client, err := g.newClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	defer client.Close()

	g.logger.Info("Sending one-shot recognition request",
		zap.Int("audioSize", len(audioData)),
		zap.String("language", recognitionConfig.LanguageCode),
		zap.Int32("sampleRate", recognitionConfig.SampleRateHertz))

	resp, err := client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: recognitionConfig,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audioData},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to recognize: %w", err)
	}

	hypotheses := make([]repositories.Hypothesis, 0)
	for _, result := range resp.GetResults() {
		for _, alt := range result.GetAlternatives() {
			hypotheses = append(hypotheses, alternativeToHypothesis(alt))
		}
	}
	return hypotheses, nil
}

// InitTranscribeStreaming opens a StreamingRecognize call and starts receiving results
func (g *GoogleSpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig, listener repositories.EventListener) (repositories.SpeechToTextStreaming, error) {
	recognitionConfig, err := g.recognitionConfig(config)
	if err != nil {
		return nil, err
	}

	client, err := g.newClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		client.Close()
		return nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         recognitionConfig,
				InterimResults: g.interimResults,
			},
		},
	}); err != nil {
		stream.CloseSend()
		cancel()
		client.Close()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	s := &googleStream{
		streamSession: newStreamSession(listener, g.logger),
		client:        client,
		stream:        stream,
		cancelCtx:     cancel,
		finished:      make(chan struct{}),
	}

	s.emit(entities.RecognitionEvent{Kind: entities.EventSessionStarted})
	go s.receiveResults()

	return s, nil
}

type googleStream struct {
	*streamSession

	client    speechClient
	stream    speechpb.Speech_StreamingRecognizeClient
	cancelCtx context.CancelFunc

	finished chan struct{}
	err      error

	writeMu     sync.Mutex
	ended       bool
	endOnce     sync.Once
	cleanupOnce sync.Once
}

func (s *googleStream) receiveResults() {
	defer close(s.finished)
	defer s.emit(entities.RecognitionEvent{Kind: entities.EventSessionStopped})

	for {
		resp, err := s.stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			s.err = fmt.Errorf("failed to receive response: %w", err)
			s.cancel(status.Code(err).String(), err.Error())
			return
		}

		if rpcErr := resp.GetError(); rpcErr != nil {
			s.logger.Error("Speech service reported an error",
				zap.Int32("code", rpcErr.GetCode()),
				zap.String("message", rpcErr.GetMessage()))
			s.cancel(strconv.Itoa(int(rpcErr.GetCode())), rpcErr.GetMessage())
			return
		}

		if resp.GetSpeechEventType() == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE {
			s.logger.Info("End of single utterance detected")
		}

		for _, result := range resp.GetResults() {
			alternatives := result.GetAlternatives()
			if len(alternatives) == 0 {
				continue
			}
			// The first alternative is the most likely one
			best := alternatives[0]

			kind := entities.EventRecognizing
			if result.GetIsFinal() {
				kind = entities.EventRecognized
			}

			offset, duration := wordSpan(best)
			s.emit(entities.RecognitionEvent{
				Kind:     kind,
				Text:     best.GetTranscript(),
				Offset:   offset,
				Duration: duration,
				Payload:  result,
			})
		}
	}
}

// Stream sends one audio chunk to the service
func (s *googleStream) Stream(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.ended || s.isDone() {
		return ErrSessionClosed
	}
	if len(data) == 0 {
		return nil
	}

	if err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

// End half-closes the stream, waits for the remaining results and releases the client
func (s *googleStream) End() error {
	var closeErr error
	s.endOnce.Do(func() {
		s.writeMu.Lock()
		s.ended = true
		s.writeMu.Unlock()

		if err := s.stream.CloseSend(); err != nil && !errors.Is(err, io.EOF) {
			closeErr = fmt.Errorf("failed to close send stream: %w", err)
		}
	})

	<-s.finished
	s.cleanup()

	if s.err != nil {
		return s.err
	}
	return closeErr
}

func (s *googleStream) cleanup() {
	s.cleanupOnce.Do(func() {
		s.cancelCtx()
		if err := s.client.Close(); err != nil {
			s.logger.Warn("Failed to close speech client", zap.Error(err))
		}
	})
}

func alternativeToHypothesis(alt *speechpb.SpeechRecognitionAlternative) repositories.Hypothesis {
	offset, duration := wordSpan(alt)
	words := make([]map[string]interface{}, 0, len(alt.GetWords()))
	for _, w := range alt.GetWords() {
		words = append(words, map[string]interface{}{
			"Word":     w.GetWord(),
			"Offset":   w.GetStartTime().AsDuration().String(),
			"Duration": (w.GetEndTime().AsDuration() - w.GetStartTime().AsDuration()).String(),
		})
	}

	return repositories.Hypothesis{
		"Lexical":    alt.GetTranscript(),
		"Display":    alt.GetTranscript(),
		"Confidence": float64(alt.GetConfidence()),
		"Offset":     offset.String(),
		"Duration":   duration.String(),
		"Words":      words,
	}
}

// wordSpan returns the start of the first word and the time to the end of the last
func wordSpan(alt *speechpb.SpeechRecognitionAlternative) (time.Duration, time.Duration) {
	words := alt.GetWords()
	if len(words) == 0 {
		return 0, 0
	}
	start := words[0].GetStartTime().AsDuration()
	end := words[len(words)-1].GetEndTime().AsDuration()
	return start, end - start
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "PCM", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
