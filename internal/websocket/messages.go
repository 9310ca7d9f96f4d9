// Package websocket defines the JSON messages exchanged over a streaming
// recognition websocket: binary frames carry audio from the client, text frames
// carry control messages from the client and lifecycle events from the server.
package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/sttquickstart/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypeAudioEnd       MessageType = "audio_end"
	MessageTypeSessionStarted MessageType = MessageType(entities.EventSessionStarted)
	MessageTypeSessionStopped MessageType = MessageType(entities.EventSessionStopped)
	MessageTypeRecognizing    MessageType = MessageType(entities.EventRecognizing)
	MessageTypeRecognized     MessageType = MessageType(entities.EventRecognized)
	MessageTypeCanceled       MessageType = MessageType(entities.EventCanceled)
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
}

// AudioEndMessage tells the server no more audio follows
type AudioEndMessage struct {
	BaseMessage
}

// EventMessage carries one recognition lifecycle event from the server
type EventMessage struct {
	BaseMessage
	SessionID    string `json:"session_id"`
	Text         string `json:"text,omitempty"`
	OffsetMs     int64  `json:"offset_ms,omitempty"`
	DurationMs   int64  `json:"duration_ms,omitempty"`
	Reason       string `json:"reason,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`
}

// NewAudioEndMessage creates the end-of-audio control message
func NewAudioEndMessage() *AudioEndMessage {
	return &AudioEndMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeAudioEnd,
			Timestamp: time.Now().Format(time.RFC3339),
		},
	}
}

// NewEventMessage converts a recognition event to its wire form
func NewEventMessage(event entities.RecognitionEvent) *EventMessage {
	return &EventMessage{
		BaseMessage: BaseMessage{
			Type:      MessageType(event.Kind),
			Timestamp: time.Now().Format(time.RFC3339),
		},
		SessionID:    event.SessionID,
		Text:         event.Text,
		OffsetMs:     event.Offset.Milliseconds(),
		DurationMs:   event.Duration.Milliseconds(),
		Reason:       string(event.Reason),
		ErrorCode:    event.ErrorCode,
		ErrorDetails: event.ErrorDetails,
	}
}

// ToEvent converts the wire form back to a recognition event
func (m *EventMessage) ToEvent() entities.RecognitionEvent {
	return entities.RecognitionEvent{
		Kind:         entities.EventKind(m.Type),
		SessionID:    m.SessionID,
		Text:         m.Text,
		Offset:       time.Duration(m.OffsetMs) * time.Millisecond,
		Duration:     time.Duration(m.DurationMs) * time.Millisecond,
		Reason:       entities.CancellationReason(m.Reason),
		ErrorCode:    m.ErrorCode,
		ErrorDetails: m.ErrorDetails,
		Payload:      m,
	}
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses and validates a text frame
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeAudioEnd:
		var msg AudioEndMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid audio end message: %w", err)
		}
		return &msg, nil

	case MessageTypeSessionStarted, MessageTypeSessionStopped, MessageTypeRecognizing,
		MessageTypeRecognized, MessageTypeCanceled:
		var msg EventMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid event message: %w", err)
		}
		if err := v.validateEvent(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %q", base.Type)
	}
}

// validateEvent validates event message fields
func (v *MessageValidator) validateEvent(msg *EventMessage) error {
	if msg.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if msg.OffsetMs < 0 || msg.DurationMs < 0 {
		return fmt.Errorf("offset_ms and duration_ms must not be negative")
	}
	if msg.Type == MessageTypeCanceled && msg.Reason == "" {
		return fmt.Errorf("reason is required for canceled events")
	}
	return nil
}
