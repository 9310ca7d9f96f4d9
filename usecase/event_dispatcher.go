package usecase

import (
	"sync"

	"github.com/satriahrh/sttquickstart/domain/entities"
	"github.com/satriahrh/sttquickstart/domain/repositories"
)

// EventHandler handles one recognition event
type EventHandler func(event entities.RecognitionEvent)

// EventDispatcher fans recognition events out to handlers registered per kind
// and closes Done once a terminal event has been handled.
type EventDispatcher struct {
	mu          sync.RWMutex
	handlers    map[entities.EventKind][]EventHandler
	subscribers []repositories.EventListener

	done     chan struct{}
	doneOnce sync.Once
}

var _ repositories.EventListener = (*EventDispatcher)(nil)

// NewEventDispatcher creates an empty dispatcher
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[entities.EventKind][]EventHandler),
		done:     make(chan struct{}),
	}
}

// On registers a handler for one event kind
func (d *EventDispatcher) On(kind entities.EventKind, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = append(d.handlers[kind], handler)
}

// Subscribe registers a listener for every event kind
func (d *EventDispatcher) Subscribe(listener repositories.EventListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, listener)
}

// OnEvent delivers the event to kind handlers, then subscribers, in registration order
func (d *EventDispatcher) OnEvent(event entities.RecognitionEvent) {
	d.mu.RLock()
	handlers := d.handlers[event.Kind]
	subscribers := d.subscribers
	d.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
	for _, subscriber := range subscribers {
		subscriber.OnEvent(event)
	}

	if event.Kind.IsTerminal() {
		d.doneOnce.Do(func() { close(d.done) })
	}
}

// Done is closed after the first session_stopped or canceled event
func (d *EventDispatcher) Done() <-chan struct{} {
	return d.done
}
