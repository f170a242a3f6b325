package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ngoyal88/auditrelay/pkg/storage"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	// Access is gated by the proxy token, not by origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is one frame of the live tail.
type Message struct {
	Type      string                 `json:"type"`
	Data      *storage.CaptureRecord `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// Hub fans newly stored records out to every connected websocket client.
// Slow clients are dropped rather than allowed to stall the others.
type Hub struct {
	clients    map[*client]struct{}
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	connected  atomic.Int64
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.connected.Store(int64(len(h.clients)))
			log.Printf("[API] live tail client connected (%d total)", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				log.Printf("[API] live tail client disconnected (%d total)", len(h.clients))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.connected.Store(int64(len(h.clients)))
}

// Clients reports how many subscribers are connected.
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

// Publish queues rec for every subscriber without blocking the caller.
func (h *Hub) Publish(rec *storage.CaptureRecord) {
	data, err := json.Marshal(Message{Type: "record", Data: rec, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		log.Printf("[API] failed to marshal live tail message: %v", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		log.Printf("[API] live tail backlog full, skipping record %s", rec.ID)
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[API] websocket upgrade failed: %v", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-r.Context().Done():
		conn.Close()
		return
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump only watches for the peer going away; subscribers send nothing.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
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
