// Package ws bridges the repricing notification bus to WebSocket clients.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	json "github.com/goccy/go-json"

	"github.com/l3acucm/urepricer/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// client represents a single WebSocket connection.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	sellers map[string]bool // empty means all sellers
	mu      sync.RWMutex
}

// filterMsg is the JSON message a client sends to narrow its feed to
// specific sellers:
//
//	{"action":"filter","sellers":["A1SELLER","A2SELLER"]}
//	{"action":"filter","sellers":[]}   // back to all sellers
type filterMsg struct {
	Action  string   `json:"action"`
	Sellers []string `json:"sellers"`
}

// Hub fans repricing notifications out to connected WebSocket clients. Each
// published CalculatedPrice arrives as one JSON text frame; clients that
// cannot keep up have messages dropped rather than stalling the broadcast.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	bus        domain.Bus
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// NewHub creates a hub that relays the repricing notification channel to
// WebSocket clients.
func NewHub(bus domain.Bus, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws")),
		startedAt:  time.Now().UTC(),
	}
}

// Run starts the hub's main event loop. It handles client registration,
// unregistration, and broadcasting, and exits when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	go h.subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws client connected", slog.Int("total_clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws client disconnected", slog.Int("total_clients", h.clientCount()))

		case data := <-h.broadcast:
			sellerID := sellerOf(data)
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(sellerID) {
					continue
				}
				select {
				case c.send <- data:
				default:
					// Client's send buffer is full; drop the message.
					h.logger.Warn("dropping message for slow ws client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// subscribe reads the notification channel and forwards payloads to the
// broadcast loop.
func (h *Hub) subscribe(ctx context.Context) {
	msgCh, err := h.bus.Subscribe(ctx, domain.ChannelRepriced)
	if err != nil {
		h.logger.Error("subscribe to notification channel failed",
			slog.String("channel", domain.ChannelRepriced),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("subscribed to notification channel", slog.String("channel", domain.ChannelRepriced))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("notification channel closed", slog.String("channel", domain.ChannelRepriced))
				return
			}
			h.broadcast <- data
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		sellers: make(map[string]bool),
	}

	h.register <- c
	c.sendInitialStatus()

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sellerOf pulls the seller id out of a notification payload so per-seller
// filters can be applied without re-broadcasting the whole record.
func sellerOf(data []byte) string {
	var probe struct {
		SellerID string `json:"seller_id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.SellerID
}

// readPump reads messages from the WebSocket connection, handling filter
// requests from the client.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var f filterMsg
		if jsonErr := json.Unmarshal(message, &f); jsonErr == nil && f.Action == "filter" {
			c.setFilter(f.Sellers)
		}
	}
}

// setFilter replaces the client's seller filter. An empty list clears it.
func (c *client) setFilter(sellers []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sellers = make(map[string]bool, len(sellers))
	for _, s := range sellers {
		if s != "" {
			c.sellers[s] = true
		}
	}
}

// wants reports whether the client should receive a notification for the
// given seller. Clients without a filter receive everything; so do messages
// whose seller could not be determined.
func (c *client) wants(sellerID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.sellers) == 0 || sellerID == "" {
		return true
	}
	return c.sellers[sellerID]
}

// sendInitialStatus pushes a small JSON envelope so clients can immediately
// mark the connection as healthy even when no repricing events are flowing.
func (c *client) sendInitialStatus() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	msg, err := json.Marshal(map[string]any{
		"type": "status",
		"payload": map[string]any{
			"connected":      true,
			"channel":        domain.ChannelRepriced,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// writePump pumps messages from the hub to the WebSocket connection as JSON
// text frames, with periodic ping frames for keepalive.
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
				// The hub closed the channel.
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
