package usecase

import (
	"fmt"
	"io"
	"sync"

	"github.com/satriahrh/sttquickstart/domain/entities"
	"github.com/satriahrh/sttquickstart/domain/repositories"
)

// PrintListener writes one line per lifecycle event
type PrintListener struct {
	mu sync.Mutex
	w  io.Writer
}

var _ repositories.EventListener = (*PrintListener)(nil)

// NewPrintListener creates a listener printing to w
func NewPrintListener(w io.Writer) *PrintListener {
	return &PrintListener{w: w}
}

func (p *PrintListener) OnEvent(event entities.RecognitionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch event.Kind {
	case entities.EventRecognizing:
		fmt.Fprintf(p.w, "RECOGNIZING: %s\n", event)
	case entities.EventRecognized:
		fmt.Fprintf(p.w, "RECOGNIZED: %s\n", event)
	case entities.EventSessionStarted:
		fmt.Fprintf(p.w, "SESSION STARTED: %s\n", event)
	case entities.EventSessionStopped:
		fmt.Fprintf(p.w, "SESSION STOPPED %s\n", event)
	case entities.EventCanceled:
		fmt.Fprintf(p.w, "CANCELED %s\n", event)
	}

	if event.Kind.IsTerminal() {
		fmt.Fprintf(p.w, "CLOSING on %s\n", event)
	}
}
