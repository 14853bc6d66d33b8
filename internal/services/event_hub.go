package services

import (
	"net/http"
	"sync"
	"time"

	"soarify/internal/models"
	"soarify/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ExecutionEvent is broadcast to websocket subscribers on every execution
// state transition.
type ExecutionEvent struct {
	Type      string                    `json:"type"` // execution_pending, execution_running, execution_completed, execution_failed
	Execution *models.PlaybookExecution `json:"execution"`
	Timestamp time.Time                 `json:"timestamp"`
}

type EventClient struct {
	ID   string
	Conn *websocket.Conn
	Send chan ExecutionEvent
	Hub  *EventHub
}

// EventHub fans execution events out to connected websocket clients. Polling
// the execution record stays the primary interface; this feed is advisory and
// slow consumers are dropped rather than back-pressuring the engine.
type EventHub struct {
	clients    map[string]*EventClient
	broadcast  chan ExecutionEvent
	register   chan *EventClient
	unregister chan *EventClient
	mutex      sync.RWMutex
	logger     *logrus.Logger
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin checks belong to the fronting proxy
	},
}

func NewEventHub(logger *logrus.Logger) *EventHub {
	if logger == nil {
		logger = logrus.New()
	}
	return &EventHub{
		clients:    make(map[string]*EventClient),
		broadcast:  make(chan ExecutionEvent, 64),
		register:   make(chan *EventClient),
		unregister: make(chan *EventClient),
		logger:     logger,
	}
}

// Run loops over hub channels; call it once in its own goroutine.
func (h *EventHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.ID] = client
			h.mutex.Unlock()
			h.logger.Debugf("event hub: client %s connected", client.ID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mutex.Unlock()
			h.logger.Debugf("event hub: client %s disconnected", client.ID)

		case event := <-h.broadcast:
			h.mutex.RLock()
			for _, client := range h.clients {
				select {
				case client.Send <- event:
				default:
					// Slow consumer: drop the event, keep the engine moving.
				}
			}
			h.mutex.RUnlock()
		}
	}
}

// Broadcast queues an event for all subscribers without blocking the caller.
func (h *EventHub) Broadcast(event ExecutionEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Debug("event hub: broadcast buffer full, dropping event")
	}
}

// ClientCount returns the number of connected subscribers.
func (h *EventHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and streams execution events until the
// client goes away.
func (h *EventHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("event hub: upgrade failed: %v", err)
		return
	}

	client := &EventClient{
		ID:   utils.GenerateID(),
		Conn: conn,
		Send: make(chan ExecutionEvent, 16),
		Hub:  h,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *EventClient) writePump() {
	defer c.Conn.Close()
	for event := range c.Send {
		if err := c.Conn.WriteJSON(event); err != nil {
			return
		}
	}
}

// readPump discards inbound frames; the feed is one-way. It exists to detect
// the close handshake.
func (c *EventClient) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
