package entities

import (
	"fmt"
	"time"
)

// EventKind identifies a recognition lifecycle notification
type EventKind string

const (
	EventSessionStarted EventKind = "session_started"
	EventSessionStopped EventKind = "session_stopped"
	EventRecognizing    EventKind = "recognizing"
	EventRecognized     EventKind = "recognized"
	EventCanceled       EventKind = "canceled"
)

// IsTerminal reports whether the event ends a recognition session
func (k EventKind) IsTerminal() bool {
	return k == EventSessionStopped || k == EventCanceled
}

// CancellationReason explains why a session was canceled
type CancellationReason string

const (
	CancellationReasonError       CancellationReason = "error"
	CancellationReasonEndOfStream CancellationReason = "end_of_stream"
)

// RecognitionEvent is a single notification emitted by a recognizer during a session
type RecognitionEvent struct {
	Kind      EventKind `json:"type"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text,omitempty"`
	// Offset and Duration are relative to the start of the audio
	Offset   time.Duration `json:"offset,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`

	Reason       CancellationReason `json:"reason,omitempty"`
	ErrorCode    string             `json:"error_code,omitempty"`
	ErrorDetails string             `json:"error_details,omitempty"`

	// Payload carries the raw transport message, if any
	Payload interface{} `json:"payload,omitempty"`
}

func (e RecognitionEvent) String() string {
	switch e.Kind {
	case EventRecognizing, EventRecognized:
		return fmt.Sprintf("SessionId:%s Text:%q Offset:%s Duration:%s", e.SessionID, e.Text, e.Offset, e.Duration)
	case EventCanceled:
		return fmt.Sprintf("SessionId:%s Reason:%s ErrorCode:%s ErrorDetails:%q", e.SessionID, e.Reason, e.ErrorCode, e.ErrorDetails)
	default:
		return fmt.Sprintf("SessionId:%s", e.SessionID)
	}
}
