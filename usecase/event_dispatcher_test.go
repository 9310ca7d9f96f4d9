package usecase

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/satriahrh/sttquickstart/domain/entities"
	"github.com/satriahrh/sttquickstart/domain/repositories"
)

func TestEventDispatcher_RegistrationOrder(t *testing.T) {
	d := NewEventDispatcher()

	var calls []string
	d.On(entities.EventRecognized, func(entities.RecognitionEvent) { calls = append(calls, "first") })
	d.On(entities.EventRecognized, func(entities.RecognitionEvent) { calls = append(calls, "second") })
	d.On(entities.EventRecognizing, func(entities.RecognitionEvent) { calls = append(calls, "partial") })
	d.Subscribe(repositories.EventListenerFunc(func(entities.RecognitionEvent) { calls = append(calls, "subscriber") }))

	d.OnEvent(entities.RecognitionEvent{Kind: entities.EventRecognized})

	want := []string{"first", "second", "subscriber"}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("Expected %v, got %v", want, calls)
	}
}

func TestEventDispatcher_Done(t *testing.T) {
	tests := []struct {
		name     string
		kinds    []entities.EventKind
		wantDone bool
	}{
		{"no events", nil, false},
		{"partial results only", []entities.EventKind{entities.EventSessionStarted, entities.EventRecognizing, entities.EventRecognized}, false},
		{"session stopped", []entities.EventKind{entities.EventSessionStarted, entities.EventSessionStopped}, true},
		{"canceled then stopped", []entities.EventKind{entities.EventCanceled, entities.EventSessionStopped}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewEventDispatcher()
			for _, kind := range tt.kinds {
				d.OnEvent(entities.RecognitionEvent{Kind: kind})
			}

			select {
			case <-d.Done():
				if !tt.wantDone {
					t.Error("Expected Done to be open")
				}
			default:
				if tt.wantDone {
					t.Error("Expected Done to be closed")
				}
			}
		})
	}
}

func TestEventDispatcher_HandlersRunBeforeDone(t *testing.T) {
	d := NewEventDispatcher()

	var sawDone bool
	d.On(entities.EventSessionStopped, func(entities.RecognitionEvent) {
		select {
		case <-d.Done():
			sawDone = true
		default:
		}
	})

	d.OnEvent(entities.RecognitionEvent{Kind: entities.EventSessionStopped})
	if sawDone {
		t.Error("Expected Done to close after handlers ran")
	}
}

func TestPrintListener(t *testing.T) {
	var out bytes.Buffer
	p := NewPrintListener(&out)

	p.OnEvent(entities.RecognitionEvent{Kind: entities.EventSessionStarted, SessionID: "abc"})
	p.OnEvent(entities.RecognitionEvent{Kind: entities.EventRecognizing, SessionID: "abc", Text: "hel"})
	p.OnEvent(entities.RecognitionEvent{Kind: entities.EventRecognized, SessionID: "abc", Text: "hello"})
	p.OnEvent(entities.RecognitionEvent{Kind: entities.EventCanceled, SessionID: "abc", Reason: entities.CancellationReasonError})
	p.OnEvent(entities.RecognitionEvent{Kind: entities.EventSessionStopped, SessionID: "abc"})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	prefixes := []string{
		"SESSION STARTED: ",
		"RECOGNIZING: ",
		"RECOGNIZED: ",
		"CANCELED ",
		"CLOSING on ",
		"SESSION STOPPED ",
		"CLOSING on ",
	}
	if len(lines) != len(prefixes) {
		t.Fatalf("Expected %d lines, got %d:\n%s", len(prefixes), len(lines), out.String())
	}
	for i, prefix := range prefixes {
		if !strings.HasPrefix(lines[i], prefix) {
			t.Errorf("Line %d: expected prefix %q, got %q", i, prefix, lines[i])
		}
	}
	if !strings.Contains(lines[2], `"hello"`) {
		t.Errorf("Expected recognized text in %q", lines[2])
	}
}
