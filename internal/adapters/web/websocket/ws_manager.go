package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
	"github.com/lcalzada-xor/tmap/internal/core/ports"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// WSMessage is the envelope of every frame in both directions.
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Realtime is the session logic the transport drives.
type Realtime interface {
	Connect(ctx context.Context, client ports.Client) error
	Disconnect(id string)
	HandleMessage(ctx context.Context, id, event string, payload json.RawMessage)
}

// WSManager upgrades HTTP requests and pumps frames between sockets and the realtime service.
type WSManager struct {
	realtime   Realtime
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	pingPeriod time.Duration
	pongWait   time.Duration
}

// NewWSManager creates the transport. An empty allowedOrigins accepts every origin.
func NewWSManager(rt Realtime, allowedOrigins []string, logger *slog.Logger) *WSManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &WSManager{
		realtime:   rt,
		logger:     logger,
		pingPeriod: pingPeriod,
		pongWait:   pongWait,
	}

	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Allow same-origin (no Origin header)
			if origin == "" || len(allowed) == 0 || allowed[origin] {
				return true
			}
			logger.Warn("WebSocket: rejected origin", "origin", origin)
			return false
		},
	}
	return m
}

// HandleWebSocket serves one connection until the peer goes away.
func (m *WSManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	client := newClient(uuid.NewString(), conn)
	ctx := r.Context()
	if err := m.realtime.Connect(ctx, client); err != nil {
		m.logger.Warn("WebSocket connect rejected", "conn", client.ID(), "error", err)
		_ = client.Close()
		return
	}

	done := make(chan struct{})
	go m.keepAlive(client, done)

	defer func() {
		close(done)
		m.realtime.Disconnect(client.ID())
		_ = conn.Close()
	}()
	m.readLoop(ctx, client)
}

func (m *WSManager) readLoop(ctx context.Context, c *Client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(m.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(m.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("WebSocket read failed", "conn", c.ID(), "error", err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			if err := c.Send(domain.EventError, domain.ErrorPayload{Message: "malformed message"}); err != nil {
				m.logger.Warn("Push failed", "conn", c.ID(), "event", domain.EventError, "error", err)
			}
			continue
		}
		m.realtime.HandleMessage(ctx, c.ID(), msg.Type, msg.Payload)
	}
}

func (m *WSManager) keepAlive(c *Client, done <-chan struct{}) {
	ticker := time.NewTicker(m.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// Client is one WebSocket session. Writes are serialized.
type Client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func newClient(id string, conn *websocket.Conn) *Client {
	return &Client{id: id, conn: conn}
}

func (c *Client) ID() string { return c.id }

// Send writes one event as a text frame.
func (c *Client) Send(event string, payload any) error {
	data, err := json.Marshal(WSMessage{Type: event, Payload: payload})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close sends a going-away frame and closes the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
		time.Now().Add(writeWait))
	c.mu.Unlock()
	return c.conn.Close()
}

var _ ports.Client = (*Client)(nil)
