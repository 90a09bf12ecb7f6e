package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"get5panel/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient is one connected event stream viewer. matchID 0 means the
// client wants events for every match.
type wsClient struct {
	hub     *WebSocketHub
	conn    *websocket.Conn
	send    chan []byte
	matchID int64
}

// WebSocketHub fans match lifecycle events out to connected viewers.
type WebSocketHub struct {
	clients    map[*wsClient]bool
	broadcast  chan domain.Event
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex
}

// NewWebSocketHub creates a hub. Call Run before broadcasting.
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan domain.Event, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

// Run is the hub's main loop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("marshaling event: %v", err)
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				if client.matchID != 0 && client.matchID != event.MatchID {
					continue
				}
				select {
				case client.send <- data:
				default:
					// Slow client, drop it.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues an event for all subscribed clients.
func (h *WebSocketHub) Broadcast(event domain.Event) {
	select {
	case h.broadcast <- event:
	default:
		log.Printf("broadcast channel full, dropping %s for match %d", event.Type, event.MatchID)
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the connection and subscribes it. An
// optional match_id query parameter narrows the stream to one match.
func (r *Router) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	var matchID int64
	if raw := req.URL.Query().Get("match_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid match_id")
			return
		}
		matchID = id
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}

	client := &wsClient{
		hub:     r.wsHub,
		conn:    conn,
		send:    make(chan []byte, 64),
		matchID: matchID,
	}
	r.wsHub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump consumes control frames until the peer goes away. Incoming
// data frames are ignored; the stream is one-way.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
