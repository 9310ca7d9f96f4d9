package stt

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/sttquickstart/domain/entities"
	"github.com/satriahrh/sttquickstart/domain/repositories"
)

const (
	defaultRegion       = "centralindia"
	defaultLanguage     = "en-IN"
	defaultMode         = "conversation"
	defaultOutputFormat = "detailed"
	defaultSampleRate   = 8000
	defaultRESTTimeout  = 60 * time.Second

	subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
)

// RESTConfig holds configuration for the RESTSpeechToText adapter
// Required fields:
// - SubscriptionKey: the speech resource key
// Optional fields with defaults:
// - Region: service region (default: "centralindia")
// - Endpoint: base URL overriding the regional endpoint, e.g. a local mock
// - TokenEndpoint: issueToken URL overriding the regional one
// - Language: recognition language (default: "en-IN")
// - Mode: conversation, interactive or dictation (default: "conversation")
// - OutputFormat: simple or detailed (default: "detailed")
// - SampleRate: sample rate declared in Content-Type (default: 8000)
// - UseToken: authenticate with a bearer token instead of the key header
// - Timeout: per-request timeout (default: 60s)
type RESTConfig struct {
	SubscriptionKey string
	Region          string
	Endpoint        string
	TokenEndpoint   string
	Language        string
	Mode            string
	OutputFormat    string
	SampleRate      int
	UseToken        bool
	Timeout         time.Duration
}

// RESTSpeechToText implements SpeechToText against the speech REST endpoint
type RESTSpeechToText struct {
	subscriptionKey string
	baseURL         string
	language        string
	mode            string
	outputFormat    string
	sampleRate      int

	tokens *TokenSource
	client *http.Client
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*RESTSpeechToText)(nil)

// recognitionResponse is the body returned by the recognition endpoint
type recognitionResponse struct {
	RecognitionStatus string                   `json:"RecognitionStatus"`
	DisplayText       string                   `json:"DisplayText"`
	Offset            int64                    `json:"Offset"`
	Duration          int64                    `json:"Duration"`
	NBest             []repositories.Hypothesis `json:"NBest"`
}

// ValidateRESTConfig validates the RESTConfig
func ValidateRESTConfig(config RESTConfig) error {
	if config.SubscriptionKey == "" {
		return ErrMissingCredentials
	}

	switch config.Mode {
	case "", "conversation", "interactive", "dictation":
	default:
		return fmt.Errorf("mode must be conversation, interactive or dictation, got %q", config.Mode)
	}

	switch config.OutputFormat {
	case "", "simple", "detailed":
	default:
		return fmt.Errorf("output format must be simple or detailed, got %q", config.OutputFormat)
	}

	if config.SampleRate < 0 {
		return fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.Endpoint != "" {
		if _, err := url.ParseRequestURI(config.Endpoint); err != nil {
			return fmt.Errorf("invalid endpoint: %w", err)
		}
	}

	return nil
}

// NewRESTSpeechToText creates a new REST recognizer
func NewRESTSpeechToText(config RESTConfig, logger *zap.Logger) (*RESTSpeechToText, error) {
	if err := ValidateRESTConfig(config); err != nil {
		return nil, err
	}

	region := config.Region
	if region == "" {
		region = defaultRegion
		logger.Info("Using default region", zap.String("region", region))
	}

	baseURL := strings.TrimRight(config.Endpoint, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.stt.speech.microsoft.com", region)
	}

	language := config.Language
	if language == "" {
		language = defaultLanguage
		logger.Info("Using default language", zap.String("language", language))
	}

	mode := config.Mode
	if mode == "" {
		mode = defaultMode
	}

	outputFormat := config.OutputFormat
	if outputFormat == "" {
		outputFormat = defaultOutputFormat
	}

	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultRESTTimeout
	}

	r := &RESTSpeechToText{
		subscriptionKey: config.SubscriptionKey,
		baseURL:         baseURL,
		language:        language,
		mode:            mode,
		outputFormat:    outputFormat,
		sampleRate:      sampleRate,
		client:          &http.Client{Timeout: timeout},
		logger:          logger,
	}

	if config.UseToken {
		tokenEndpoint := config.TokenEndpoint
		if tokenEndpoint == "" && config.Endpoint != "" {
			tokenEndpoint = baseURL + issueTokenPath
		}
		if tokenEndpoint == "" {
			tokenEndpoint = fmt.Sprintf("https://%s.api.cognitive.microsoft.com%s", region, issueTokenPath)
		}
		r.tokens = NewTokenSource(tokenEndpoint, config.SubscriptionKey, r.client, logger)
	}

	return r, nil
}

// NewRESTConfigFromEnv creates a new RESTConfig from environment variables
func NewRESTConfigFromEnv() RESTConfig {
	config := RESTConfig{
		SubscriptionKey: os.Getenv("SPEECH_KEY"),
		Region:          os.Getenv("SPEECH_REGION"),
		Endpoint:        os.Getenv("SPEECH_ENDPOINT"),
		TokenEndpoint:   os.Getenv("SPEECH_TOKEN_ENDPOINT"),
		Language:        os.Getenv("SPEECH_LANGUAGE"),
		Mode:            os.Getenv("SPEECH_RECOGNITION_MODE"),
		OutputFormat:    os.Getenv("SPEECH_OUTPUT_FORMAT"),
	}

	if v := os.Getenv("SPEECH_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
			config.SampleRate = rate
		}
	}

	if v := os.Getenv("SPEECH_USE_TOKEN"); v != "" {
		if useToken, err := strconv.ParseBool(v); err == nil {
			config.UseToken = useToken
		}
	}

	if v := os.Getenv("SPEECH_TIMEOUT_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			config.Timeout = time.Duration(seconds) * time.Second
		}
	}

	return config
}

// RecognizeOnce posts the whole buffer and returns the NBest list.
// Unparseable responses degrade to an empty list.
func (r *RESTSpeechToText) RecognizeOnce(ctx context.Context, audioData []byte, config repositories.AudioConfig) ([]repositories.Hypothesis, error) {
	httpReq, err := r.newRequest(ctx, config, bytes.NewReader(audioData))
	if err != nil {
		return nil, err
	}

	r.logger.Info("Sending one-shot recognition request",
		zap.String("url", httpReq.URL.String()),
		zap.Int("audioSize", len(audioData)))

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		r.logger.Error("Speech API returned error",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(body)))
	}

	parsed := r.parseResponse(body)
	return parsed.NBest, nil
}

// InitTranscribeStreaming opens a chunked POST; each Stream call becomes one HTTP chunk
func (r *RESTSpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig, listener repositories.EventListener) (repositories.SpeechToTextStreaming, error) {
	pr, pw := io.Pipe()

	httpReq, err := r.newRequest(ctx, config, pr)
	if err != nil {
		pw.Close()
		return nil, err
	}
	httpReq.ContentLength = -1
	httpReq.TransferEncoding = []string{"chunked"}

	stream := &restStream{
		streamSession: newStreamSession(listener, r.logger),
		recognizer:    r,
		pipe:          pw,
		finished:      make(chan struct{}),
	}

	stream.emit(entities.RecognitionEvent{Kind: entities.EventSessionStarted})
	go stream.run(httpReq, pr)

	return stream, nil
}

func (r *RESTSpeechToText) newRequest(ctx context.Context, config repositories.AudioConfig, body io.Reader) (*http.Request, error) {
	language := r.language
	if config.Language != "" {
		language = config.Language
	}
	sampleRate := r.sampleRate
	if config.SampleRate > 0 {
		sampleRate = config.SampleRate
	}

	query := url.Values{}
	query.Set("language", language)
	query.Set("format", r.outputFormat)
	endpoint := fmt.Sprintf("%s/speech/recognition/%s/cognitiveservices/v1?%s", r.baseURL, r.mode, query.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	if r.tokens != nil {
		token, err := r.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain access token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	} else {
		httpReq.Header.Set(subscriptionKeyHeader, r.subscriptionKey)
	}
	httpReq.Header.Set("Content-Type", ContentType(sampleRate))
	httpReq.Header.Set("Accept", "application/json")

	return httpReq, nil
}

func (r *RESTSpeechToText) parseResponse(body []byte) recognitionResponse {
	var parsed recognitionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		r.logger.Warn("Failed to parse recognition response",
			zap.String("response", string(body)),
			zap.Error(err))
		return recognitionResponse{NBest: []repositories.Hypothesis{}}
	}
	if parsed.NBest == nil {
		parsed.NBest = []repositories.Hypothesis{}
	}
	return parsed
}

// ContentType declares a PCM WAV payload at the given sample rate
func ContentType(sampleRate int) string {
	return fmt.Sprintf("audio/wav; codecs=audio/pcm; samplerate=%d", sampleRate)
}

// restStream is one chunked upload in flight
type restStream struct {
	*streamSession
	recognizer *RESTSpeechToText

	pipe     *io.PipeWriter
	finished chan struct{}
	err      error

	writeMu sync.Mutex
	ended   bool
	endOnce sync.Once
}

func (s *restStream) run(httpReq *http.Request, body *io.PipeReader) {
	defer close(s.finished)
	defer body.Close()
	defer s.emit(entities.RecognitionEvent{Kind: entities.EventSessionStopped})

	resp, err := s.recognizer.client.Do(httpReq)
	if err != nil {
		s.err = fmt.Errorf("failed to execute HTTP request: %w", err)
		s.cancel("transport", err.Error())
		return
	}
	defer resp.Body.Close()

	var raw bytes.Buffer
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		s.logger.Debug("Received response line", zap.ByteString("line", line))
		raw.Write(line)
		raw.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		s.err = fmt.Errorf("failed to read response body: %w", err)
		s.cancel("transport", err.Error())
		return
	}

	if resp.StatusCode != http.StatusOK {
		s.logger.Error("Speech API returned error",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", raw.String()))
		s.cancel(strconv.Itoa(resp.StatusCode), strings.TrimSpace(raw.String()))
		return
	}

	parsed := s.recognizer.parseResponse(raw.Bytes())
	text := parsed.DisplayText
	if len(parsed.NBest) > 0 {
		if display, ok := parsed.NBest[0]["Display"].(string); ok {
			text = display
		}
	}
	if text == "" {
		s.logger.Info("No speech recognized", zap.String("status", parsed.RecognitionStatus))
		return
	}

	s.emit(entities.RecognitionEvent{
		Kind:     entities.EventRecognized,
		Text:     text,
		Offset:   ticksToDuration(parsed.Offset),
		Duration: ticksToDuration(parsed.Duration),
		Payload:  parsed.NBest,
	})
}

// Stream writes one chunk to the request body
func (s *restStream) Stream(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.ended || s.isDone() {
		return ErrSessionClosed
	}
	if len(data) == 0 {
		return nil
	}
	if _, err := s.pipe.Write(data); err != nil {
		return fmt.Errorf("failed to stream audio data: %w", err)
	}
	return nil
}

// End closes the request body and waits for the response to be processed
func (s *restStream) End() error {
	s.endOnce.Do(func() {
		s.writeMu.Lock()
		s.ended = true
		s.writeMu.Unlock()
		s.pipe.Close()
	})
	<-s.finished
	return s.err
}

// ticksToDuration converts the service's 100-nanosecond ticks
func ticksToDuration(ticks int64) time.Duration {
	return time.Duration(ticks) * 100 * time.Nanosecond
}
