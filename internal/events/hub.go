package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/kmorales/car-audio-hub-go/internal/focus"
	"github.com/kmorales/car-audio-hub-go/internal/mirror"
	"github.com/kmorales/car-audio-hub-go/internal/volume"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

// Envelope is the wire frame for every pushed event.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// volumePayload pairs a group snapshot with the change mask that produced it.
type volumePayload struct {
	Group  volume.GroupInfo `json:"group"`
	Events string           `json:"events"`
}

// Hub fans policy events out to websocket subscribers. It implements the
// volume event sink, the focus dispatcher, and the mirror event sink, so the
// policy packages never see websockets. Publishing never blocks: a
// subscriber that cannot keep up loses frames and eventually the connection.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]bool

	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an event hub.
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Control surface is same-origin or trusted tooling.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// PublishVolumeEvent implements volume.EventSink.
func (h *Hub) PublishVolumeEvent(info volume.GroupInfo, events volume.EventType) {
	h.broadcast(Envelope{Type: "volume", Payload: volumePayload{
		Group:  info,
		Events: events.String(),
	}})
}

// DispatchFocusChange implements focus.Dispatcher. Called with the focus
// engine lock held, so it must not block; broadcast only enqueues.
func (h *Hub) DispatchFocusChange(event focus.ChangeEvent) {
	h.broadcast(Envelope{Type: "focus", Payload: event})
}

// PublishMirrorEvent implements mirror.EventSink.
func (h *Hub) PublishMirrorEvent(event mirror.Event) error {
	h.broadcast(Envelope{Type: "mirror", Payload: event})
	return nil
}

func (h *Hub) broadcast(envelope Envelope) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal event envelope")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.WithField("client", c.id).Warn("subscriber too slow, dropping connection")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ServeWS upgrades a request into an event subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.WithFields(logrus.Fields{
		"client":      c.id,
		"subscribers": count,
	}).Info("event subscriber connected")

	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// readLoop discards inbound frames; the socket is push-only. It exists to
// notice disconnects and answer pings.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).WithField("client", c.id).Debug("subscriber read error")
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close()
	}
}
