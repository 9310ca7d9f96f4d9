package stt

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/sttquickstart/domain/entities"
	"github.com/satriahrh/sttquickstart/domain/repositories"
)

// streamSession holds the event plumbing shared by every streaming adapter
type streamSession struct {
	id       string
	listener repositories.EventListener
	logger   *zap.Logger

	mu      sync.Mutex
	stopped bool

	done     chan struct{}
	doneOnce sync.Once
}

func newStreamSession(listener repositories.EventListener, logger *zap.Logger) *streamSession {
	id := uuid.NewString()
	return &streamSession{
		id:       id,
		listener: listener,
		logger:   logger.With(zap.String("sessionID", id)),
		done:     make(chan struct{}),
	}
}

func (s *streamSession) ID() string { return s.id }

func (s *streamSession) Done() <-chan struct{} { return s.done }

// emit delivers an event to the listener. Nothing is delivered after session_stopped.
func (s *streamSession) emit(event entities.RecognitionEvent) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.logger.Debug("Dropping event after session stopped", zap.String("kind", string(event.Kind)))
		return
	}
	if event.Kind == entities.EventSessionStopped {
		s.stopped = true
	}
	s.mu.Unlock()

	event.SessionID = s.id
	if s.listener != nil {
		s.listener.OnEvent(event)
	}

	if event.Kind.IsTerminal() {
		s.doneOnce.Do(func() { close(s.done) })
	}
}

// isDone reports whether a terminal event was emitted
func (s *streamSession) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *streamSession) cancel(code, details string) {
	s.emit(entities.RecognitionEvent{
		Kind:         entities.EventCanceled,
		Reason:       entities.CancellationReasonError,
		ErrorCode:    code,
		ErrorDetails: details,
	})
}
