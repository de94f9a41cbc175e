package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	feedWriteDeadline = 5 * time.Second
	feedQueueSize     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for local dashboards
	},
}

// Hub fans abuse alerts out to every connected dashboard. The feed is
// push-only: clients never send anything meaningful, but each gets a
// read pump so disconnects are noticed promptly.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	feed    chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		feed:    make(chan []byte, feedQueueSize),
	}
}

// Run drains the feed and writes each message to every client. Runs on
// its own goroutine for the life of the process.
func (h *Hub) Run() {
	for msg := range h.feed {
		h.mu.Lock()
		for conn := range h.clients {
			// A stalled client must not hang the whole feed.
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("[AlertFeed] Dropping client after write error: %v", err)
				conn.Close()
				delete(h.clients, conn)
			}
		}
		h.mu.Unlock()
	}
}

// Broadcast queues a JSON payload for delivery to all clients. When the
// queue is full the message is dropped rather than blocking a detector.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.feed <- data:
	default:
		log.Println("[AlertFeed] Feed queue full, dropping alert broadcast")
	}
}

// Subscribe upgrades the request and registers the client on the feed.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[AlertFeed] Upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	log.Printf("[AlertFeed] Client connected (total %d)", total)

	go h.readPump(conn)
}

// readPump discards inbound frames until the connection dies, then
// unregisters the client.
func (h *Hub) readPump(conn *websocket.Conn) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		total := len(h.clients)
		h.mu.Unlock()
		conn.Close()
		log.Printf("[AlertFeed] Client disconnected (total %d)", total)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[AlertFeed] Read error: %v", err)
			}
			return
		}
	}
}
