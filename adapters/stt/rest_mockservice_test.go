package stt_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/sttquickstart/adapters/stt"
	"github.com/satriahrh/sttquickstart/domain/entities"
	"github.com/satriahrh/sttquickstart/domain/repositories"
	"github.com/satriahrh/sttquickstart/internal/mockserver"
	"github.com/satriahrh/sttquickstart/internal/transcript"
	"github.com/satriahrh/sttquickstart/usecase"
)

func newRESTRecognizer(t *testing.T, baseURL, key string, useToken bool) *stt.RESTSpeechToText {
	t.Helper()
	recognizer, err := stt.NewRESTSpeechToText(stt.RESTConfig{
		SubscriptionKey: key,
		Endpoint:        baseURL,
		UseToken:        useToken,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create recognizer: %v", err)
	}
	return recognizer
}

func TestRESTRecognizeOnce_MockService(t *testing.T) {
	tests := []struct {
		name     string
		useToken bool
	}{
		{"subscription key", false},
		{"bearer token", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, baseURL := setupMockService(t, mockserver.Config{})
			recognizer := newRESTRecognizer(t, baseURL, testKey, tt.useToken)

			hypotheses, err := recognizer.RecognizeOnce(context.Background(), make([]byte, 16000), repositories.AudioConfig{SampleRate: 8000})
			if err != nil {
				t.Fatalf("RecognizeOnce() error = %v", err)
			}

			if len(hypotheses) != 2 {
				t.Fatalf("Expected 2 hypotheses, got %d: %v", len(hypotheses), hypotheses)
			}
			want := transcript.Canned(16000)
			if hypotheses[0]["Display"] != want {
				t.Errorf("Expected Display %q, got %v", want, hypotheses[0]["Display"])
			}
			for i, h := range hypotheses {
				if display, _ := h["Display"].(string); display == "" {
					t.Errorf("Hypothesis %d has no Display text: %v", i, h)
				}
			}
		})
	}
}

func TestRESTRecognizeOnce_MockServiceWrongKey(t *testing.T) {
	_, baseURL := setupMockService(t, mockserver.Config{})

	t.Run("token exchange rejected", func(t *testing.T) {
		recognizer := newRESTRecognizer(t, baseURL, "wrong-key", true)
		if _, err := recognizer.RecognizeOnce(context.Background(), make([]byte, 16000), repositories.AudioConfig{}); err == nil {
			t.Error("Expected the token exchange to fail")
		}
	})

	t.Run("recognition rejected", func(t *testing.T) {
		recognizer := newRESTRecognizer(t, baseURL, "wrong-key", false)
		hypotheses, err := recognizer.RecognizeOnce(context.Background(), make([]byte, 16000), repositories.AudioConfig{})
		if err != nil {
			t.Fatalf("Expected an error response to degrade to an empty list, got %v", err)
		}
		if len(hypotheses) != 0 {
			t.Errorf("Expected no hypotheses, got %v", hypotheses)
		}
	})
}

func TestRESTStreaming_MockService(t *testing.T) {
	tests := []struct {
		name     string
		useToken bool
	}{
		{"subscription key", false},
		{"bearer token", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, baseURL := setupMockService(t, mockserver.Config{})
			recognizer := newRESTRecognizer(t, baseURL, testKey, tt.useToken)

			listener := &recordingListener{}
			session, err := recognizer.InitTranscribeStreaming(context.Background(), repositories.AudioConfig{SampleRate: 8000}, listener)
			if err != nil {
				t.Fatalf("InitTranscribeStreaming() error = %v", err)
			}
			for i := 0; i < 3; i++ {
				if err := session.Stream(make([]byte, 8000)); err != nil {
					t.Fatalf("Stream() error = %v", err)
				}
			}
			if err := session.End(); err != nil {
				t.Fatalf("End() error = %v", err)
			}

			events := listener.snapshot()
			var kinds []entities.EventKind
			for _, e := range events {
				kinds = append(kinds, e.Kind)
			}
			want := []entities.EventKind{
				entities.EventSessionStarted,
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

			recognized := events[1]
			if recognized.Text != transcript.Canned(24000) {
				t.Errorf("Expected %q, got %q", transcript.Canned(24000), recognized.Text)
			}
			if recognized.Duration != 1500*time.Millisecond {
				t.Errorf("Expected 1.5s of audio, got %v", recognized.Duration)
			}
			if nbest, ok := recognized.Payload.([]repositories.Hypothesis); !ok || len(nbest) == 0 {
				t.Errorf("Expected the NBest list as payload, got %#v", recognized.Payload)
			}
		})
	}
}

func TestTranscriptionService_MockServiceREST(t *testing.T) {
	_, baseURL := setupMockService(t, mockserver.Config{Transcript: "Testing one two three."})
	recognizer := newRESTRecognizer(t, baseURL, testKey, true)

	service := usecase.NewTranscriptionService(recognizer, repositories.AudioConfig{SampleRate: 8000}, 8000, zap.NewNop())

	hypotheses, err := service.RecognizeOnce(context.Background(), io.NopCloser(bytes.NewReader(make([]byte, 20000))))
	if err != nil {
		t.Fatalf("RecognizeOnce() error = %v", err)
	}
	if len(hypotheses) == 0 || hypotheses[0]["Display"] != "Testing one two three." {
		t.Errorf("Unexpected hypotheses %v", hypotheses)
	}

	transcripts, err := service.StreamingRecognize(context.Background(), io.NopCloser(bytes.NewReader(make([]byte, 20000))))
	if err != nil {
		t.Fatalf("StreamingRecognize() error = %v", err)
	}
	if len(transcripts) != 1 || transcripts[0] != "Testing one two three." {
		t.Errorf("Expected one transcript, got %v", transcripts)
	}
}
