package entities

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState represents the lifecycle state of a continuous recognition session
type SessionState string

const (
	SessionStateNotStarted     SessionState = "not_started"
	SessionStateStreaming      SessionState = "streaming"
	SessionStateSessionStopped SessionState = "session_stopped"
	SessionStateCanceled       SessionState = "canceled"
	SessionStateClosed         SessionState = "closed"
)

// ErrInvalidTransition is returned when a session is moved to a state it cannot reach
var ErrInvalidTransition = errors.New("invalid session state transition")

// RecognitionSession tracks one streaming recognition call from open to close
type RecognitionSession struct {
	ID        string       `json:"id"`
	State     SessionState `json:"state"`
	Language  string       `json:"language"`
	CreatedAt time.Time    `json:"created_at"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`

	// Transcripts holds final results in the order they were received
	Transcripts []string `json:"transcripts"`

	ChunksSent int `json:"chunks_sent"`
	BytesSent  int `json:"bytes_sent"`

	mu sync.Mutex
}

// NewRecognitionSession creates a session in the NotStarted state
func NewRecognitionSession(language string) *RecognitionSession {
	return &RecognitionSession{
		ID:          uuid.NewString(),
		State:       SessionStateNotStarted,
		Language:    language,
		CreatedAt:   time.Now(),
		Transcripts: make([]string, 0),
	}
}

// Start moves the session from NotStarted to Streaming
func (s *RecognitionSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != SessionStateNotStarted {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, SessionStateStreaming)
	}
	now := time.Now()
	s.StartedAt = &now
	s.State = SessionStateStreaming
	return nil
}

// RecordChunk accounts for one audio chunk written to the session
func (s *RecognitionSession) RecordChunk(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ChunksSent++
	s.BytesSent += size
}

// AddTranscript appends a final result to the transcript list
func (s *RecognitionSession) AddTranscript(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Transcripts = append(s.Transcripts, text)
}

// Stop applies a terminal event. Only the first terminal event changes the state.
func (s *RecognitionSession) Stop(kind EventKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target SessionState
	switch kind {
	case EventSessionStopped:
		target = SessionStateSessionStopped
	case EventCanceled:
		target = SessionStateCanceled
	default:
		return fmt.Errorf("%w: %s is not a terminal event", ErrInvalidTransition, kind)
	}

	switch s.State {
	case SessionStateStreaming:
		s.State = target
		return nil
	case SessionStateSessionStopped, SessionStateCanceled:
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, target)
	}
}

// Close moves the session to Closed from any state. It is idempotent.
func (s *RecognitionSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State == SessionStateClosed {
		return
	}
	now := time.Now()
	s.EndedAt = &now
	s.State = SessionStateClosed
}

// IsStreaming reports whether chunks may still be written
func (s *RecognitionSession) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State == SessionStateStreaming
}

// CurrentState returns the state under lock
func (s *RecognitionSession) CurrentState() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State
}

// Results returns a copy of the transcript list
func (s *RecognitionSession) Results() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.Transcripts))
	copy(out, s.Transcripts)
	return out
}

// Validate validates the session data
func (s *RecognitionSession) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}

	switch s.State {
	case SessionStateNotStarted, SessionStateStreaming, SessionStateSessionStopped,
		SessionStateCanceled, SessionStateClosed:
	default:
		return errors.New("invalid session state")
	}

	return nil
}
