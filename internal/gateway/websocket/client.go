package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pawbot/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the gateway listens on localhost by default; origin checks are left
	// to the reverse proxy in front of it
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one WebSocket connection.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	sessions    map[string]bool
	id          string
	connectedAt time.Time

	// ctx ends when the connection goes away; running turns see it.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a client for conn.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		sessions:    make(map[string]bool),
		id:          uuid.NewString(),
		connectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error().Err(err).Str("client_id", c.id).Msg("WebSocket read error")
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Debug().Err(err).Str("client_id", c.id).Msg("Failed to parse WebSocket message")
		c.sendError("INVALID_MESSAGE", "failed to parse message")
		return
	}

	switch msg.Type {
	case TypeSubscribe:
		if msg.Session != "" {
			c.hub.Subscribe(c, msg.Session)
		}

	case TypeUnsubscribe:
		if msg.Session != "" {
			c.hub.Unsubscribe(c, msg.Session)
		}

	case TypePing:
		c.enqueue(Encode(WSMessage{Type: TypePong}))

	case TypeChat:
		c.chat(msg)

	default:
		logger.Debug().Str("client_id", c.id).Str("type", msg.Type).Msg("Unknown message type")
		c.sendError("INVALID_MESSAGE", "unknown message type "+msg.Type)
	}
}

// chat starts a turn. Its frames go to every subscriber of the session, so
// a second window on the same conversation sees the reply too.
func (c *Client) chat(msg WSMessage) {
	if msg.Message == "" {
		c.sendError("INVALID_REQUEST", "chat message is required")
		return
	}
	session := msg.Session
	if session == "" {
		session = c.id
	}
	c.hub.Subscribe(c, session)

	req := ChatRequest{
		Session: session,
		User:    msg.User,
		Text:    msg.Message,
		Private: msg.Private == nil || *msg.Private,
	}
	events, err := c.hub.HandleChat(c.ctx, req)
	if err != nil {
		logger.Error().Err(err).Str("client_id", c.id).Str("session", session).Msg("Failed to handle chat message")
		c.sendError("CHAT_ERROR", err.Error())
		return
	}
	if events == nil {
		c.sendError("CHAT_ERROR", "chat handler not configured")
		return
	}

	go func() {
		for data := range events {
			c.hub.Broadcast(session, data)
		}
	}()
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
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug().Err(err).Str("client_id", c.id).Msg("WebSocket write error")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue sends directly to this client, dropping the frame when its
// buffer is full or the hub has already let go of the client.
func (c *Client) enqueue(data []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(code, message string) {
	c.enqueue(Encode(WSMessage{Type: TypeError, Code: code, Message: message}))
}

// ServeWs upgrades the request and starts the client's pumps.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(hub, conn)
	if !hub.Register(client) {
		client.cancel()
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
