package mockserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/sttquickstart/domain/entities"
	wsproto "github.com/satriahrh/sttquickstart/internal/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024

	// How often idle sessions are looked for.
	reapPeriod = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active recognition sessions
type Hub struct {
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex

	config Config
	logger *zap.Logger
}

// NewHub creates a new session hub
func NewHub(config Config, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		config:     config,
		logger:     logger,
	}
}

// Run starts the hub's main loop and reaps idle sessions until Stop is called
func (h *Hub) Run() {
	ticker := time.NewTicker(reapPeriod)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.sessionID] = client
			h.mu.Unlock()
			h.logger.Info("Session registered", zap.String("sessionID", client.sessionID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.sessionID]; ok {
				delete(h.clients, client.sessionID)
				client.closeSend()
			}
			h.mu.Unlock()
			h.logger.Info("Session unregistered", zap.String("sessionID", client.sessionID))

		case now := <-ticker.C:
			h.reapIdle(now)

		case <-h.stop:
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				client.closeSend()
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop ends the main loop and closes every session
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		h.logger.Info("Session hub stopped")
	})
}

// Count returns the number of active sessions
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// reapIdle cancels sessions that have not sent audio within the idle timeout
func (h *Hub) reapIdle(now time.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if client.idleSince(now) < h.config.IdleTimeout {
			continue
		}
		h.logger.Info("Canceling idle session", zap.String("sessionID", client.sessionID))
		client.finish(entities.RecognitionEvent{
			Kind:         entities.EventCanceled,
			Reason:       entities.CancellationReasonError,
			ErrorCode:    "idle_timeout",
			ErrorDetails: "no audio received within the idle timeout",
		})
	}
}

// Client is a middleman between one websocket session and the hub
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
	logger    *zap.Logger
	validator *wsproto.MessageValidator

	sampleRate int

	mu           sync.Mutex
	stopped      bool
	closed       bool
	lastActivity time.Time
	totalBytes   int
	pending      int
	phraseStart  int
}

func newClient(hub *Hub, conn *websocket.Conn, sampleRate int) *Client {
	id := uuid.NewString()
	return &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, 256),
		sessionID:    id,
		logger:       hub.logger.With(zap.String("sessionID", id)),
		validator:    wsproto.NewMessageValidator(),
		sampleRate:   sampleRate,
		lastActivity: time.Now(),
	}
}

func (c *Client) idleSince(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return 0
	}
	return now.Sub(c.lastActivity)
}

// closeSend closes the outbound queue so the write pump sends a close frame
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// enqueue queues an event for the write pump; the caller holds c.mu
func (c *Client) enqueue(event entities.RecognitionEvent) {
	if c.closed {
		return
	}
	event.SessionID = c.sessionID
	payload, err := json.Marshal(wsproto.NewEventMessage(event))
	if err != nil {
		c.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	select {
	case c.send <- payload:
	default:
		c.logger.Warn("Send queue full, dropping event", zap.String("kind", string(event.Kind)))
	}
}

// finish emits a terminal event followed by session_stopped, once
func (c *Client) finish(terminal entities.RecognitionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true
	if terminal.Kind != entities.EventSessionStopped {
		c.enqueue(terminal)
	}
	c.enqueue(entities.RecognitionEvent{Kind: entities.EventSessionStopped})
}

// readPump pumps messages from the websocket connection to the session.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch messageType {
		case websocket.BinaryMessage:
			c.processAudio(message)
		case websocket.TextMessage:
			c.processMessage(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the session to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processAudio emits a recognizing event per frame and a recognized event per utterance
func (c *Client) processAudio(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		c.logger.Debug("Ignoring audio after session stopped", zap.Int("size", len(data)))
		return
	}
	if len(data) == 0 {
		return
	}

	c.lastActivity = time.Now()
	c.totalBytes += len(data)
	c.pending += len(data)

	utterance := c.hub.config.UtteranceBytes
	for c.pending >= utterance {
		c.commitPhrase(utterance)
	}
	if c.pending == 0 {
		return
	}

	text := transcriptFor(c.pending, c.hub.config.Transcript)
	c.enqueue(entities.RecognitionEvent{
		Kind:     entities.EventRecognizing,
		Text:     partialTranscript(text, float64(c.pending)/float64(utterance)),
		Offset:   audioDuration(c.phraseStart, c.sampleRate),
		Duration: audioDuration(c.pending, c.sampleRate),
	})
}

// commitPhrase emits a recognized event for size bytes of pending audio; the caller holds c.mu
func (c *Client) commitPhrase(size int) {
	c.enqueue(entities.RecognitionEvent{
		Kind:     entities.EventRecognized,
		Text:     transcriptFor(size, c.hub.config.Transcript),
		Offset:   audioDuration(c.phraseStart, c.sampleRate),
		Duration: audioDuration(size, c.sampleRate),
	})
	c.phraseStart += size
	c.pending -= size
}

// processMessage handles control messages from the client
func (c *Client) processMessage(message []byte) {
	parsed, err := c.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid control message", zap.Error(err))
		return
	}

	switch parsed.(type) {
	case *wsproto.AudioEndMessage:
		c.mu.Lock()
		if !c.stopped && c.pending > 0 {
			c.commitPhrase(c.pending)
		}
		total := c.totalBytes
		c.mu.Unlock()

		c.logger.Info("Audio ended", zap.Int("totalBytes", total))
		c.finish(entities.RecognitionEvent{Kind: entities.EventSessionStopped})
	default:
		c.logger.Warn("Unexpected message from client")
	}
}
