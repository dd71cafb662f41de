package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/metrics"
	"github.com/leafsii/leafsii-vault/internal/store"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	idleTimeout    = 2 * pongWait
	maxMessageSize = 1024
	sendBuffer     = 256
)

type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	cache      *store.Cache
	logger     *zap.SugaredLogger
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu         sync.Mutex
	channels   map[string]bool
	address    *account.Address
	lastActive time.Time
}

type Message struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type WSSubscriptionRequest struct {
	Type    string   `json:"type"`
	Topics  []string `json:"topics"`
	Address string   `json:"address,omitempty"`
}

// NewHub streams vault pub/sub traffic to websocket clients. An empty
// allowedOrigins accepts only same-origin requests.
func NewHub(cache *store.Cache, allowedOrigins []string, logger *zap.SugaredLogger, m *metrics.Metrics) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		cache:      cache,
		logger:     logger,
		metrics:    m,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

func (h *Hub) Run(ctx context.Context) {
	sub := h.cache.Subscribe(ctx, allChannels()...)
	defer func() { sub.Close() }()

	cleanup := time.NewTicker(30 * time.Second)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Infow("WebSocket hub shutting down")
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.metrics.IncrementConnections(ctx)
			h.logger.Debugw("Client registered", "remote", client.conn.RemoteAddr().String())

		case client := <-h.unregister:
			if h.drop(client) {
				h.metrics.DecrementConnections(ctx)
			}
			h.logger.Debugw("Client unregistered", "remote", client.conn.RemoteAddr().String())

		case msg, ok := <-sub.Channel():
			if !ok {
				if ctx.Err() != nil {
					continue
				}
				h.logger.Warnw("Vault subscription closed; resubscribing")
				sub = h.cache.Subscribe(ctx, allChannels()...)
				continue
			}
			h.dispatch(ctx, msg)

		case <-cleanup.C:
			h.cleanupInactiveClients(ctx)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// drop removes client and closes its send channel once.
func (h *Hub) drop(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return false
	}
	delete(h.clients, client)
	close(client.send)
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) dispatch(ctx context.Context, msg *store.Message) {
	h.logger.Debugw("Received vault message", "channel", msg.Channel)

	out, err := json.Marshal(Message{
		Type:      "update",
		Topic:     msg.Channel,
		Data:      json.RawMessage(msg.Payload),
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		h.logger.Errorw("Failed to marshal WebSocket message", "error", err)
		return
	}

	h.mu.RLock()
	var slow []*Client
	for client := range h.clients {
		if !client.wants(msg) {
			continue
		}
		select {
		case client.send <- out:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		if h.drop(client) {
			h.metrics.DecrementConnections(ctx)
			h.logger.Debugw("Dropped slow client", "remote", client.conn.RemoteAddr().String())
		}
	}
}

func (h *Hub) cleanupInactiveClients(ctx context.Context) {
	cutoff := time.Now().Add(-idleTimeout)

	h.mu.RLock()
	var idle []*Client
	for client := range h.clients {
		client.mu.Lock()
		if client.lastActive.Before(cutoff) {
			idle = append(idle, client)
		}
		client.mu.Unlock()
	}
	h.mu.RUnlock()

	for _, client := range idle {
		if h.drop(client) {
			h.metrics.DecrementConnections(ctx)
			h.logger.Debugw("Cleaned up inactive client", "remote", client.conn.RemoteAddr().String())
		}
	}
}

// WebSocket endpoint handler
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		channels:   make(map[string]bool),
		lastActive: time.Now(),
	}

	select {
	case h.register <- client:
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Errorw("WebSocket error", "error", err)
			}
			break
		}

		c.touch()
		c.handleMessage(message)
	}
}

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

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

func (c *Client) handleMessage(message []byte) {
	var req WSSubscriptionRequest
	if err := json.Unmarshal(message, &req); err != nil {
		c.hub.logger.Warnw("Invalid subscription message", "error", err)
		c.reply("error", "invalid subscription message")
		return
	}

	channels := channelsFor(req.Topics)

	c.mu.Lock()
	switch req.Type {
	case "subscribe":
		for _, ch := range channels {
			c.channels[ch] = true
		}
		if req.Address != "" {
			addr, err := account.ParseAddress(req.Address)
			if err != nil {
				c.mu.Unlock()
				c.reply("error", "invalid address")
				return
			}
			c.address = &addr
		}
	case "unsubscribe":
		for _, ch := range channels {
			delete(c.channels, ch)
		}
		if req.Address != "" {
			c.address = nil
		}
	default:
		c.mu.Unlock()
		c.reply("error", "unknown request type")
		return
	}
	c.mu.Unlock()

	c.hub.logger.Debugw("Client subscription changed", "type", req.Type, "channels", channels, "address", req.Address)
	c.reply(req.Type+"d", channels)
}

// reply queues a control message to this client only.
func (c *Client) reply(kind string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	out, err := json.Marshal(Message{Type: kind, Data: raw, Timestamp: time.Now().Unix()})
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- out:
	default:
	}
}

// wants reports whether msg matches the client's channels and address filter.
func (c *Client) wants(msg *store.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.channels[msg.Channel] {
		return false
	}
	if c.address != nil && msg.Channel != store.ChannelVaultUpdates {
		return mentions(msg.Payload, *c.address)
	}
	return true
}
