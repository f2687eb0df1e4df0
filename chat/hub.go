package chat

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/signchat/chat-relay/config"
	"github.com/signchat/chat-relay/db"
	"github.com/signchat/chat-relay/telemetry"
)

// Store is the persistence the hub needs. db.MessageStore implements it.
type Store interface {
	Append(ctx context.Context, content, username string) (int64, error)
	ListAll(ctx context.Context) ([]db.Message, error)
	ListAfter(ctx context.Context, afterID int64) ([]db.Message, error)
}

// Hub tracks connected clients and fans stored messages out to them.
type Hub struct {
	store    Store
	config   config.WebSocketConfig
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*Client

	// broadcastMu gives every client the same broadcast order.
	broadcastMu sync.Mutex
}

// NewHub returns a hub backed by store. Zero values in cfg fall back to
// config.DefaultWebSocketConfig.
func NewHub(store Store, cfg config.WebSocketConfig) *Hub {
	def := config.DefaultWebSocketConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	return &Hub{
		store:  store,
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced by the CORS layer, not here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*Client),
	}
}

// ServeWS upgrades the request and runs the connection: history replay first,
// then inbound handling on its own goroutine.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "chat"))

	username, offset := handshakeClaims(r)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}

	c := newClient(uuid.New().String(), h, conn, username, offset)
	h.Register(c)
	log.Debug("client connected", slog.String("client_id", c.ID), slog.String("username", c.Username))

	// The request context ends when this handler returns; keep its values only.
	ctx := context.WithoutCancel(r.Context())
	go c.WritePump()
	go func() {
		c.replay(ctx)
		c.ReadPump(ctx)
	}()
}

// handshakeClaims extracts the optional username and recovery offset.
func handshakeClaims(r *http.Request) (string, *int64) {
	q := r.URL.Query()
	username := q.Get("username")
	if username == "" {
		username = r.Header.Get("X-Username")
	}
	var offset *int64
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			offset = &n
		}
	}
	return username, offset
}

// Register adds c to the broadcast set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()
	telemetry.SetClientsConnected(n)
}

// Unregister removes c and closes it. Unknown clients are ignored.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	delete(h.clients, c.ID)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	if ok {
		telemetry.SetClientsConnected(n)
		slog.Debug("client disconnected", slog.String("client_id", c.ID), slog.String("component", "chat"))
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Post stores a message from username and broadcasts it once the store has
// assigned an id. On store failure nothing is broadcast. Concurrent posts
// write to the store independently and are broadcast in commit order.
func (h *Hub) Post(ctx context.Context, username, text string) (db.Message, error) {
	telemetry.Inc(telemetry.MessagesReceived)
	if username == "" {
		username = db.AnonymousUsername
	}

	ctx, span := telemetry.StartSpan(ctx, "chat", "chat.post")
	defer span.End()

	id, err := h.store.Append(ctx, text, username)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.Inc(telemetry.MessagesDropped)
		telemetry.LoggerWithCorr(ctx).Error("dropping chat message: store write failed",
			slog.String("username", username),
			slog.Any("err", err),
			slog.String("component", "chat"))
		return db.Message{}, err
	}
	m := db.Message{ID: id, Content: text, Username: username}

	h.broadcastMu.Lock()
	h.Broadcast(m)
	h.broadcastMu.Unlock()
	telemetry.SetSpanSuccess(span)
	return m, nil
}

// Broadcast sends m to every registered client, including the author.
// Clients whose send queue is full are disconnected.
func (h *Hub) Broadcast(m db.Message) {
	data, err := encodeMessage(m)
	if err != nil {
		slog.Error("encode broadcast", slog.Int64("id", m.ID), slog.Any("err", err), slog.String("component", "chat"))
		return
	}

	var slow []*Client
	h.mu.RLock()
	for _, c := range h.clients {
		if !c.deliver(m, data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	telemetry.Inc(telemetry.MessagesBroadcast)

	for _, c := range slow {
		telemetry.Inc(telemetry.SlowClientsEvicted)
		slog.Warn("evicting slow client", slog.String("client_id", c.ID), slog.String("component", "chat"))
		h.Unregister(c)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
	telemetry.SetClientsConnected(0)
}

func (h *Hub) handleFrame(ctx context.Context, c *Client, raw []byte) {
	f, err := decodeFrame(raw)
	if err != nil {
		slog.Warn("ignoring malformed frame", slog.String("client_id", c.ID), slog.Any("err", err), slog.String("component", "chat"))
		return
	}
	switch f.Event {
	case EventChatMessage:
		text, err := f.text()
		if err != nil {
			slog.Warn("ignoring chat message", slog.String("client_id", c.ID), slog.Any("err", err), slog.String("component", "chat"))
			return
		}
		_, _ = h.Post(ctx, c.Username, text)
	default:
		slog.Debug("ignoring unknown event", slog.String("client_id", c.ID), slog.String("event", f.Event), slog.String("component", "chat"))
	}
}
