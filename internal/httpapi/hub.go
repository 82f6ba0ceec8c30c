package httpapi

import (
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vanaheimr/usersapi/internal/notification"
)

const (
	clientBuffer = 64
	writeTimeout = 5 * time.Second
)

type wsClient struct {
	send  chan []byte
	owner notification.OwnerID
}

// EventHub streams channel events to websocket clients. A client may pass
// ?owner= to receive only that owner's events.
type EventHub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewEventHub creates a hub. An empty allowedOrigins accepts any origin.
func NewEventHub(allowedOrigins []string, logger *slog.Logger) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// Publish fans e out to connected clients. Slow clients miss events
// rather than block the caller. It has the Listener signature.
func (h *EventHub) Publish(e notification.Event) {
	body, err := e.Encode()
	if err != nil {
		h.logger.Error("Failed to encode channel event", "id", e.ID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.owner != "" && c.owner != e.Owner {
			continue
		}
		select {
		case c.send <- body:
		default:
			h.logger.Warn("Websocket client too slow, dropping event", "id", e.ID)
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade to websocket", "error", err)
		return
	}

	c := &wsClient{
		send:  make(chan []byte, clientBuffer),
		owner: notification.OwnerID(r.URL.Query().Get("owner")),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(conn, c)

	// Incoming frames are ignored; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
}

func (h *EventHub) writeLoop(conn *websocket.Conn, c *wsClient) {
	defer conn.Close()
	for body := range c.send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}
