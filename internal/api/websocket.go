package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/venstar-bridge/internal/events"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/config"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/venstar-bridge/internal/reflector"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// Broadcast channels.
const (
	ChannelNodeUpdated = "node.updated"
	ChannelNodeAdded   = "node.added"
	ChannelNodeRemoved = "node.removed"
	ChannelEvent       = "event"

	// channelAll matches every channel.
	channelAll = "*"
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub fans reflector updates and bridge events out to WebSocket clients.
// It satisfies the reflector publisher interfaces and events.Reporter so it
// can sit beside the MQTT publisher.
type Hub struct {
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// Unregister removes a client from the hub. Only the caller that removes
// the client from the map closes its send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// Broadcast sends payload to all clients subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}

	for _, client := range h.snapshot() {
		if client.isSubscribed(channel) {
			client.trySend(data)
		}
	}
}

// snapshot copies the client set so sends happen without the hub lock.
func (h *Hub) snapshot() []*WSClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		out = append(out, client)
	}
	return out
}

// PublishUpdate broadcasts changed attributes on node.updated.
func (h *Hub) PublishUpdate(_ context.Context, u reflector.Update) {
	h.Broadcast(ChannelNodeUpdated, u)
}

// PublishNode broadcasts a newly created node on node.added.
func (h *Hub) PublishNode(_ context.Context, n reflector.Node) {
	h.Broadcast(ChannelNodeAdded, n)
}

// RemoveNode broadcasts the address of a removed node on node.removed.
func (h *Hub) RemoveNode(_ context.Context, address string) {
	h.Broadcast(ChannelNodeRemoved, map[string]string{"address": address})
}

// Report broadcasts a bridge event on the event channel.
func (h *Hub) Report(_ context.Context, e events.Event) {
	h.Broadcast(ChannelEvent, e)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the connection. Clients start subscribed to the
// channels listed in ?channels=a,b or to everything when none are given.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, initialChannels(r.URL.Query().Get("channels")))
	s.hub.Register(client)

	ka := newKeepalive(s.wsCfg)
	go client.writeLoop(ka)
	go client.readLoop(ka, int64(s.wsCfg.MaxMessageSize))
}

func newWSClient(hub *Hub, conn *websocket.Conn, channels []string) *WSClient {
	c := &WSClient{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}, len(channels)),
	}
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	return c
}

func initialChannels(raw string) []string {
	var out []string
	for _, ch := range strings.Split(raw, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			out = append(out, ch)
		}
	}
	if len(out) == 0 {
		return []string{channelAll}
	}
	return out
}

// keepalive holds the ping cadence for one connection.
type keepalive struct {
	ping time.Duration
	pong time.Duration
}

func newKeepalive(cfg config.WebSocketConfig) keepalive {
	return keepalive{
		ping: time.Duration(cfg.PingInterval) * time.Second,
		pong: time.Duration(cfg.PongTimeout) * time.Second,
	}
}

// readDeadline is how long the peer may stay silent.
func (k keepalive) readDeadline() time.Time {
	return time.Now().Add(k.ping + k.pong)
}

func (k keepalive) writeDeadline() time.Time {
	return time.Now().Add(k.pong)
}

// readLoop handles client requests until the connection drops. Any frame,
// including a pong, extends the read deadline.
func (c *WSClient) readLoop(ka keepalive, limit int64) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(limit)
	c.conn.SetReadDeadline(ka.readDeadline()) //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(ka.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(ka.readDeadline()) //nolint:errcheck // see above
		c.handleMessage(data)
	}
}

// writeLoop drains the send queue and pings on the keepalive cadence. It
// exits when the hub closes the queue or a write fails.
func (c *WSClient) writeLoop(ka keepalive) {
	ticker := time.NewTicker(ka.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(ka.writeDeadline()) //nolint:errcheck // the write below reports failure
		return c.conn.WriteMessage(kind, data)
	}

	for {
		var err error
		select {
		case data, open := <-c.send:
			if !open {
				write(websocket.CloseMessage, nil) //nolint:errcheck // peer may already be gone
				return
			}
			err = write(websocket.TextMessage, data)
		case <-ticker.C:
			err = write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, errorBody("invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.handleSubscription(msg)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.reply(msg.ID, WSTypeError, errorBody("unknown message type: "+msg.Type))
	}
}

func (c *WSClient) handleSubscription(msg WSMessage) {
	// Payload arrives as a generic map; round-trip it into the typed form.
	raw, err := json.Marshal(msg.Payload)
	var sub WSSubscribePayload
	if err == nil {
		err = json.Unmarshal(raw, &sub)
	}
	if err != nil {
		c.reply(msg.ID, WSTypeError, errorBody("invalid "+msg.Type+" payload"))
		return
	}

	subscribe := msg.Type == WSTypeSubscribe
	c.mu.Lock()
	for _, ch := range sub.Channels {
		if subscribe {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if subscribe {
		key = "subscribed"
	}
	c.reply(msg.ID, WSTypeResponse, map[string]any{key: sub.Channels})
}

func errorBody(message string) map[string]string {
	return map[string]string{"message": message}
}

// trySend queues data without blocking. Slow or departed clients lose it.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on a channel closed by Unregister
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, all := c.subscriptions[channelAll]
	_, one := c.subscriptions[channel]
	return all || one
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}
