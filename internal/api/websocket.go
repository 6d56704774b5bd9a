package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/hamrelay/internal/infrastructure/config"
	"github.com/nerrad567/hamrelay/internal/infrastructure/logging"
	"github.com/nerrad567/hamrelay/internal/relay"
)

// Feed message types. Clients send filter and ping; the server sends
// event, pong and error.
const (
	FeedFilter = "filter"
	FeedPing   = "ping"
	FeedPong   = "pong"
	FeedEvent  = "event"
	FeedError  = "error"
)

// feedBufferSize is the per-client outbound queue. Events for a client
// whose queue is full are dropped.
const feedBufferSize = 256

// FeedMessage is one frame on the live event feed.
type FeedMessage struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// Kinds is the filter requested by a filter message and echoed back
	// in the pong that confirms it. Empty means every kind.
	Kinds []relay.EventKind `json:"kinds,omitempty"`

	Event *relay.Event `json:"event,omitempty"`
	Error string       `json:"error,omitempty"`
}

// Hub fans relay events out to websocket clients. It implements
// relay.EventSink.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu    sync.RWMutex
	kinds map[relay.EventKind]bool // nil: all kinds
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*feedClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

func (h *Hub) register(c *feedClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("feed client connected", "clients", n)
}

// unregister is safe to call more than once; only the first call closes
// the send queue.
func (h *Hub) unregister(c *feedClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
		h.logger.Debug("feed client disconnected", "clients", n)
	}
}

// Record queues ev for every client whose filter accepts its kind.
func (h *Hub) Record(ev relay.Event) {
	data, err := json.Marshal(FeedMessage{Type: FeedEvent, Event: &ev})
	if err != nil {
		h.logger.Error("failed to marshal feed event", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*feedClient, 0, len(h.clients))
	for c := range h.clients {
		if c.wants(ev.Kind) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.trySend(data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the request to a feed connection. The "kinds"
// query parameter (comma separated) sets the initial filter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &feedClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, feedBufferSize),
	}
	c.setFilter(parseKinds(r.URL.Query().Get("kinds")))

	s.hub.register(c)
	go c.writeLoop()
	go c.readLoop()
}

func parseKinds(raw string) []relay.EventKind {
	var kinds []relay.EventKind
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, relay.EventKind(k))
		}
	}
	return kinds
}

func (c *feedClient) setFilter(kinds []relay.EventKind) {
	var filter map[relay.EventKind]bool
	if len(kinds) > 0 {
		filter = make(map[relay.EventKind]bool, len(kinds))
		for _, k := range kinds {
			filter[k] = true
		}
	}
	c.mu.Lock()
	c.kinds = filter
	c.mu.Unlock()
}

func (c *feedClient) wants(kind relay.EventKind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kinds == nil || c.kinds[kind]
}

func (c *feedClient) readLoop() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	cfg := c.hub.cfg
	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(wait)) //nolint:errcheck // read error ends the loop
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("feed read error", "error", err)
			}
			return
		}
		// any client frame counts as liveness
		c.conn.SetReadDeadline(time.Now().Add(wait)) //nolint:errcheck // read error ends the loop
		c.handle(data)
	}
}

func (c *feedClient) writeLoop() {
	cfg := c.hub.cfg
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error ends the loop
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error ends the loop
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *feedClient) handle(data []byte) {
	var msg FeedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(FeedMessage{Type: FeedError, Error: "invalid JSON message"})
		return
	}

	switch msg.Type {
	case FeedFilter:
		c.setFilter(msg.Kinds)
		c.reply(FeedMessage{Type: FeedPong, ID: msg.ID, Kinds: msg.Kinds})
	case FeedPing:
		c.reply(FeedMessage{Type: FeedPong, ID: msg.ID})
	default:
		c.reply(FeedMessage{Type: FeedError, ID: msg.ID, Error: "unknown message type: " + msg.Type})
	}
}

func (c *feedClient) reply(msg FeedMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// trySend drops data when the queue is full or already closed.
func (c *feedClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on a queue closed by unregister
	}()

	select {
	case c.send <- data:
	default:
	}
}
