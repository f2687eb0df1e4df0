package chat

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signchat/chat-relay/config"
	"github.com/signchat/chat-relay/db"
	"github.com/signchat/chat-relay/telemetry"
)

// Client is one websocket connection registered with the hub.
type Client struct {
	ID       string
	Username string
	// Offset is the last message id the client reported seeing, or nil.
	Offset *int64

	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	config config.WebSocketConfig

	mu        sync.Mutex
	replaying bool
	backlog   []db.Message
	closeOnce sync.Once
}

func newClient(id string, hub *Hub, conn *websocket.Conn, username string, offset *int64) *Client {
	size := hub.config.SendBuffer
	if size <= 0 {
		size = config.DefaultWebSocketConfig().SendBuffer
	}
	return &Client{
		ID:        id,
		Username:  username,
		Offset:    offset,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, size),
		done:      make(chan struct{}),
		config:    hub.config,
		replaying: true,
	}
}

// deliver queues a live broadcast. While the client is replaying history the
// message is held back. It reports false when the send queue is full.
func (c *Client) deliver(m db.Message, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return true
	default:
	}
	if c.replaying {
		c.backlog = append(c.backlog, m)
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// enqueue blocks until data is queued or the client is closed.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	}
}

// replay sends the stored history, then any live messages held back meanwhile
// that were not part of it, and finally switches the client to live delivery.
func (c *Client) replay(ctx context.Context) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "chat"), slog.String("client_id", c.ID))

	var (
		history []db.Message
		err     error
	)
	if c.Offset != nil {
		history, err = c.hub.store.ListAfter(ctx, *c.Offset)
	} else {
		history, err = c.hub.store.ListAll(ctx)
	}
	if err != nil {
		telemetry.Inc(telemetry.HistoryReplayFailures)
		log.Error("history replay failed", slog.Any("err", err))
		history = nil
	}

	for _, m := range history {
		data, err := encodeMessage(m)
		if err != nil {
			log.Warn("skipping unencodable message", slog.Int64("id", m.ID), slog.Any("err", err))
			continue
		}
		if !c.enqueue(data) {
			return
		}
		telemetry.Inc(telemetry.HistoryReplayed)
	}

	for {
		c.mu.Lock()
		pending := c.backlog
		c.backlog = nil
		if len(pending) == 0 {
			c.replaying = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		for _, m := range pending {
			if _, seen := slices.BinarySearchFunc(history, m.ID, func(e db.Message, id int64) int {
				return cmp.Compare(e.ID, id)
			}); seen {
				continue
			}
			data, err := encodeMessage(m)
			if err != nil {
				continue
			}
			if !c.enqueue(data) {
				return
			}
		}
	}
}

// close signals the write pump to send a close frame and drop the socket,
// which in turn ends the read pump. Safe to call repeatedly.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		c.mu.Unlock()
	})
}

// ReadPump handles inbound frames one at a time until the connection fails.
func (c *Client) ReadPump(ctx context.Context) {
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.Warn("websocket read error", slog.String("client_id", c.ID), slog.Any("err", err), slog.String("component", "chat"))
			}
			return
		}
		c.hub.handleFrame(ctx, c, raw)
	}
}

// WritePump writes queued frames and keepalive pings until the client closes.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.Unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Unregister(c)
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
