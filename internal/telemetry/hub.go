// Package telemetry streams live engine snapshots to dashboard clients
// over websockets.
//
// Two streams exist. The price stream carries market rows: while a
// position is open it shows that position's live P&L, otherwise one row
// per eligible stock with its distance to the breakout trigger. The
// status stream mirrors the run state machine. Each stream is owned by
// one Hub; a shared feed loop rebuilds the payload from live state on
// every tick, so a frame is always a full snapshot, never an increment.
//
// The feed loop is stream-global, not per-client. It starts when any
// client sends {"action":"start_feed"} and stops on {"action":"stop_feed"}
// or when the last client disconnects.
package telemetry

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// PayloadFunc builds one frame for a stream. Called once per feed tick.
type PayloadFunc func(now time.Time) interface{}

// Hub owns one telemetry stream: the connected clients plus the shared
// feed loop that pushes frames to all of them.
type Hub struct {
	name     string
	interval time.Duration
	build    PayloadFunc

	mu      sync.Mutex
	clients map[*Client]bool
	feeding bool
	stop    chan struct{}
}

// NewHub builds a hub for the named stream. A non-positive interval
// falls back to one second.
func NewHub(name string, interval time.Duration, build PayloadFunc) *Hub {
	if interval <= 0 {
		interval = time.Second
	}
	return &Hub{
		name:     name,
		interval: interval,
		build:    build,
		clients:  make(map[*Client]bool),
	}
}

// ServeWS upgrades the request and registers the peer on the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[telemetry] ws upgrade error on %s: %v", h.name, err)
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.addClient(client)

	if greeting, err := json.Marshal(map[string]interface{}{
		"type": "server_message",
		"msg":  "connected to " + h.name,
	}); err == nil {
		client.send <- greeting
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("[telemetry] client connected to %s (%d total)", h.name, n)
}

// RemoveClient drops a peer and closes its send queue. The feed loop
// stops when the last peer leaves. Safe to call twice.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	if len(h.clients) == 0 && h.feeding {
		h.feeding = false
		close(h.stop)
	}
	h.mu.Unlock()
	close(c.send)
}

// ClientCount returns the number of connected peers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// StartFeed launches the shared emit loop. Idempotent.
func (h *Hub) StartFeed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.feeding {
		return
	}
	h.feeding = true
	h.stop = make(chan struct{})
	go h.loop(h.stop)
	log.Printf("[telemetry] feed loop started on %s", h.name)
}

// StopFeed signals the emit loop to exit. Idempotent.
func (h *Hub) StopFeed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.feeding {
		return
	}
	h.feeding = false
	close(h.stop)
	log.Printf("[telemetry] feed stop signalled on %s", h.name)
}

// Feeding reports whether the emit loop is live.
func (h *Hub) Feeding() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.feeding
}

func (h *Hub) loop(stop chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			log.Printf("[telemetry] feed loop stopped on %s", h.name)
			return
		case now := <-ticker.C:
			frame, err := json.Marshal(map[string]interface{}{
				"type": "feed_update",
				"data": h.build(now),
			})
			if err != nil {
				log.Printf("[telemetry] %s payload marshal failed: %v", h.name, err)
				continue
			}
			h.broadcast(frame)
		}
	}
}

// broadcast fans a frame out to every peer. A peer whose send queue is
// full loses the frame rather than blocking the loop; the next tick
// carries a fresh snapshot anyway.
func (h *Hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
		}
	}
}
