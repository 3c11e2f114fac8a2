package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ridewatch/internal/domain"
)

const (
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 1024
	sendBuffer     = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RidesMessage carries a full snapshot of the tracked rides.
type RidesMessage struct {
	Type  string            `json:"type"`
	Rides []domain.RideView `json:"rides"`
}

// AlertMessage asks connected dashboards to play the audible cue.
type AlertMessage struct {
	Type   string `json:"type"`
	RideID int64  `json:"rideId"`
}

// Client is one connected dashboard.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans ride snapshots and alerts out to every connected dashboard. It is
// the presentation sink of the tracker.
type Hub struct {
	clients    map[string]*Client
	mu         sync.RWMutex
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{} // closed when Run returns

	lastMu    sync.RWMutex
	lastRides []byte // most recent snapshot, replayed to new clients
}

// NewHub creates a new Hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 8),
		unregister: make(chan *Client, 8),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			log.Println("[WS] hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()

			h.lastMu.RLock()
			snapshot := h.lastRides
			h.lastMu.RUnlock()
			if snapshot != nil {
				client.trySend(snapshot)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// RenderRides broadcasts a snapshot of the tracked rides.
func (h *Hub) RenderRides(rides []domain.Ride) {
	msg, err := json.Marshal(RidesMessage{Type: "rides", Rides: domain.Views(rides)})
	if err != nil {
		log.Printf("[WS] encode rides: %v", err)
		return
	}

	h.lastMu.Lock()
	h.lastRides = msg
	h.lastMu.Unlock()

	h.Broadcast(msg)
}

// Alert asks every dashboard to play the audible cue for a ride.
func (h *Hub) Alert(rideID int64) {
	msg, err := json.Marshal(AlertMessage{Type: "alert", RideID: rideID})
	if err != nil {
		log.Printf("[WS] encode alert: %v", err)
		return
	}
	h.Broadcast(msg)
}

// Broadcast queues a message for every client. A full queue drops it.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		log.Println("[WS] broadcast channel full, message dropped")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a dashboard connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}

	client := &Client{
		ID:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  h,
	}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) trySend(message []byte) {
	select {
	case c.send <- message:
	default:
	}
}

// readPump only drains control frames; dashboards never send commands.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] read error on %s: %v", c.ID, err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
