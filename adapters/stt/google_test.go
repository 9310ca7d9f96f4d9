package stt

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/satriahrh/sttquickstart/domain/entities"
	"github.com/satriahrh/sttquickstart/domain/repositories"
)

// eventRecorder collects events in arrival order
type eventRecorder struct {
	mu     sync.Mutex
	events []entities.RecognitionEvent
}

func (r *eventRecorder) OnEvent(event entities.RecognitionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) kinds() []entities.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]entities.EventKind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func (r *eventRecorder) find(kind entities.EventKind) []entities.RecognitionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entities.RecognitionEvent
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// fakeRecognizeStream replays scripted responses until the client half-closes
type fakeRecognizeStream struct {
	grpc.ClientStream

	mu        sync.Mutex
	sent      []*speechpb.StreamingRecognizeRequest
	responses chan *speechpb.StreamingRecognizeResponse
	recvErr   error
	closeOnce sync.Once
}

func newFakeRecognizeStream(responses ...*speechpb.StreamingRecognizeResponse) *fakeRecognizeStream {
	ch := make(chan *speechpb.StreamingRecognizeResponse, len(responses))
	for _, r := range responses {
		ch <- r
	}
	return &fakeRecognizeStream{responses: ch}
}

func (f *fakeRecognizeStream) Send(req *speechpb.StreamingRecognizeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeRecognizeStream) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	resp, ok := <-f.responses
	if !ok {
		if f.recvErr != nil {
			return nil, f.recvErr
		}
		return nil, io.EOF
	}
	return resp, nil
}

func (f *fakeRecognizeStream) CloseSend() error {
	f.closeOnce.Do(func() { close(f.responses) })
	return nil
}

type fakeSpeechClient struct {
	stream     *fakeRecognizeStream
	recognize  *speechpb.RecognizeResponse
	gotRequest *speechpb.RecognizeRequest
	closed     int
}

func (f *fakeSpeechClient) Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error) {
	f.gotRequest = req
	return f.recognize, nil
}

func (f *fakeSpeechClient) StreamingRecognize(ctx context.Context, opts ...gax.CallOption) (speechpb.Speech_StreamingRecognizeClient, error) {
	return f.stream, nil
}

func (f *fakeSpeechClient) Close() error {
	f.closed++
	return nil
}

func newTestGoogle(t *testing.T, client *fakeSpeechClient, config GoogleConfig) *GoogleSpeechToText {
	t.Helper()
	g, err := newGoogleSpeechToText(config, func(ctx context.Context) (speechClient, error) {
		return client, nil
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create recognizer: %v", err)
	}
	return g
}

func streamingResult(text string, final bool) *speechpb.StreamingRecognizeResponse {
	return &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			{
				IsFinal: final,
				Alternatives: []*speechpb.SpeechRecognitionAlternative{
					{
						Transcript: text,
						Confidence: 0.9,
						Words: []*speechpb.WordInfo{
							{Word: text, StartTime: durationpb.New(500 * time.Millisecond), EndTime: durationpb.New(1200 * time.Millisecond)},
						},
					},
					{Transcript: text + " alt"},
				},
			},
		},
	}
}

func TestGoogleStreaming(t *testing.T) {
	stream := newFakeRecognizeStream(
		streamingResult("hel", false),
		streamingResult("hello", true),
	)
	client := &fakeSpeechClient{stream: stream}
	g := newTestGoogle(t, client, GoogleConfig{})

	recorder := &eventRecorder{}
	session, err := g.InitTranscribeStreaming(context.Background(), repositories.AudioConfig{Language: "en-US"}, recorder)
	if err != nil {
		t.Fatalf("InitTranscribeStreaming() error = %v", err)
	}

	for _, chunk := range [][]byte{make([]byte, 8000), make([]byte, 4000)} {
		if err := session.Stream(chunk); err != nil {
			t.Fatalf("Stream() error = %v", err)
		}
	}
	if err := session.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	// Streaming config first, then audio in order
	if len(stream.sent) != 3 {
		t.Fatalf("Expected 3 requests, got %d", len(stream.sent))
	}
	cfg := stream.sent[0].GetStreamingConfig()
	if cfg == nil {
		t.Fatal("Expected first request to carry the streaming config")
	}
	if !cfg.GetInterimResults() {
		t.Error("Expected interim results to be enabled")
	}
	if cfg.GetConfig().GetLanguageCode() != "en-US" {
		t.Errorf("Expected language en-US, got %s", cfg.GetConfig().GetLanguageCode())
	}
	if len(stream.sent[1].GetAudioContent()) != 8000 || len(stream.sent[2].GetAudioContent()) != 4000 {
		t.Error("Audio chunks were not sent in order")
	}

	kinds := recorder.kinds()
	want := []entities.EventKind{
		entities.EventSessionStarted,
		entities.EventRecognizing,
		entities.EventRecognized,
		entities.EventSessionStopped,
	}
	if len(kinds) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}

	recognized := recorder.find(entities.EventRecognized)[0]
	if recognized.Text != "hello" {
		t.Errorf("Expected best alternative text, got %q", recognized.Text)
	}
	if recognized.Offset != 500*time.Millisecond || recognized.Duration != 700*time.Millisecond {
		t.Errorf("Unexpected timing: offset %s duration %s", recognized.Offset, recognized.Duration)
	}

	select {
	case <-session.Done():
	default:
		t.Error("Expected Done to be closed after End")
	}
	if client.closed != 1 {
		t.Errorf("Expected client closed once, got %d", client.closed)
	}

	// End is idempotent and writes after it fail
	if err := session.End(); err != nil {
		t.Errorf("Second End() error = %v", err)
	}
	if err := session.Stream([]byte{1}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}
	if client.closed != 1 {
		t.Errorf("Expected client still closed once, got %d", client.closed)
	}
}

func TestGoogleStreaming_RPCError(t *testing.T) {
	stream := newFakeRecognizeStream()
	stream.recvErr = grpcstatus.Error(codes.Unauthenticated, "bad credentials")
	stream.CloseSend()

	client := &fakeSpeechClient{stream: stream}
	g := newTestGoogle(t, client, GoogleConfig{})

	recorder := &eventRecorder{}
	session, err := g.InitTranscribeStreaming(context.Background(), repositories.AudioConfig{}, recorder)
	if err != nil {
		t.Fatalf("InitTranscribeStreaming() error = %v", err)
	}

	<-session.Done()
	if err := session.End(); err == nil {
		t.Error("Expected End to report the receive error")
	}

	canceled := recorder.find(entities.EventCanceled)
	if len(canceled) != 1 {
		t.Fatalf("Expected 1 canceled event, got %d", len(canceled))
	}
	if canceled[0].ErrorCode != codes.Unauthenticated.String() {
		t.Errorf("Expected error code %s, got %s", codes.Unauthenticated, canceled[0].ErrorCode)
	}

	kinds := recorder.kinds()
	if kinds[len(kinds)-1] != entities.EventSessionStopped {
		t.Errorf("Expected session_stopped last, got %v", kinds)
	}
}

func TestGoogleStreaming_ServiceError(t *testing.T) {
	stream := newFakeRecognizeStream(&speechpb.StreamingRecognizeResponse{
		Error: &status.Status{Code: int32(codes.InvalidArgument), Message: "sample rate mismatch"},
	})
	client := &fakeSpeechClient{stream: stream}
	g := newTestGoogle(t, client, GoogleConfig{})

	recorder := &eventRecorder{}
	session, err := g.InitTranscribeStreaming(context.Background(), repositories.AudioConfig{}, recorder)
	if err != nil {
		t.Fatalf("InitTranscribeStreaming() error = %v", err)
	}

	<-session.Done()
	if err := session.Stream([]byte{1, 2}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed after cancellation, got %v", err)
	}
	if err := session.End(); err != nil {
		t.Errorf("Expected service errors to surface only as events, got %v", err)
	}

	canceled := recorder.find(entities.EventCanceled)
	if len(canceled) != 1 || canceled[0].ErrorDetails != "sample rate mismatch" {
		t.Errorf("Unexpected canceled events: %+v", canceled)
	}
}

func TestGoogleRecognizeOnce(t *testing.T) {
	client := &fakeSpeechClient{
		recognize: &speechpb.RecognizeResponse{
			Results: []*speechpb.SpeechRecognitionResult{
				{
					Alternatives: []*speechpb.SpeechRecognitionAlternative{
						{
							Transcript: "hello world",
							Confidence: 0.92,
							Words: []*speechpb.WordInfo{
								{Word: "hello", StartTime: durationpb.New(0), EndTime: durationpb.New(400 * time.Millisecond)},
								{Word: "world", StartTime: durationpb.New(400 * time.Millisecond), EndTime: durationpb.New(time.Second)},
							},
						},
						{Transcript: "yellow world", Confidence: 0.4},
					},
				},
			},
		},
	}
	g := newTestGoogle(t, client, GoogleConfig{SampleRate: 16000, MaxAlternatives: 2})

	audioData := make([]byte, 16000)
	hypotheses, err := g.RecognizeOnce(context.Background(), audioData, repositories.AudioConfig{})
	if err != nil {
		t.Fatalf("RecognizeOnce() error = %v", err)
	}

	if len(hypotheses) != 2 {
		t.Fatalf("Expected 2 hypotheses, got %d", len(hypotheses))
	}
	if hypotheses[0]["Display"] != "hello world" {
		t.Errorf("Expected first hypothesis display, got %v", hypotheses[0]["Display"])
	}
	if hypotheses[0]["Duration"] != "1s" {
		t.Errorf("Expected duration 1s, got %v", hypotheses[0]["Duration"])
	}
	if words, ok := hypotheses[0]["Words"].([]map[string]interface{}); !ok || len(words) != 2 {
		t.Errorf("Expected 2 words, got %v", hypotheses[0]["Words"])
	}

	cfg := client.gotRequest.GetConfig()
	if cfg.GetSampleRateHertz() != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", cfg.GetSampleRateHertz())
	}
	if cfg.GetMaxAlternatives() != 2 {
		t.Errorf("Expected 2 alternatives, got %d", cfg.GetMaxAlternatives())
	}
	if cfg.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
		t.Errorf("Expected LINEAR16, got %s", cfg.GetEncoding())
	}
	if len(client.gotRequest.GetAudio().GetContent()) != len(audioData) {
		t.Error("Expected the whole buffer to be sent")
	}
	if client.closed != 1 {
		t.Errorf("Expected client closed once, got %d", client.closed)
	}
}

func TestGetAudioEncoding(t *testing.T) {
	tests := []struct {
		encoding string
		want     speechpb.RecognitionConfig_AudioEncoding
		wantErr  bool
	}{
		{"WAV", speechpb.RecognitionConfig_LINEAR16, false},
		{"PCM", speechpb.RecognitionConfig_LINEAR16, false},
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16, false},
		{"FLAC", speechpb.RecognitionConfig_FLAC, false},
		{"MULAW", speechpb.RecognitionConfig_MULAW, false},
		{"MP3", speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, true},
	}

	for _, tt := range tests {
		t.Run(tt.encoding, func(t *testing.T) {
			got, err := getAudioEncoding(tt.encoding)
			if (err != nil) != tt.wantErr {
				t.Errorf("getAudioEncoding() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("getAudioEncoding() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewGoogleSpeechToText_Validation(t *testing.T) {
	factory := func(ctx context.Context) (speechClient, error) { return &fakeSpeechClient{}, nil }

	if _, err := newGoogleSpeechToText(GoogleConfig{Encoding: "MP3"}, factory, zap.NewNop()); err == nil {
		t.Error("Expected error for unsupported encoding")
	}
	if _, err := newGoogleSpeechToText(GoogleConfig{MaxAlternatives: -1}, factory, zap.NewNop()); err == nil {
		t.Error("Expected error for negative max alternatives")
	}

	g, err := newGoogleSpeechToText(GoogleConfig{}, factory, zap.NewNop())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if g.language != defaultLanguage || g.sampleRate != defaultSampleRate || g.maxAlternatives != defaultGoogleMaxAlternatives {
		t.Errorf("Defaults not applied: %+v", g)
	}
	if !g.interimResults {
		t.Error("Expected interim results enabled by default")
	}
}
