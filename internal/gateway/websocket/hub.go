package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"pawbot/pkg/logger"
)

// ChatRequest is a chat frame handed to the ChatHandler.
type ChatRequest struct {
	Session string
	User    string
	Text    string
	Private bool
}

// ChatHandler runs a chat turn and streams encoded frames for it. The
// channel is closed when the turn is over. ctx ends when the client leaves.
type ChatHandler func(ctx context.Context, req ChatRequest) (<-chan []byte, error)

// Hub tracks connected clients and their session subscriptions.
type Hub struct {
	clients  map[*Client]bool
	sessions map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}

	mu          sync.RWMutex
	chatHandler ChatHandler
}

// NewHub creates a Hub. Start it with Run.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		sessions:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// SetChatHandler sets the callback for chat frames.
func (h *Hub) SetChatHandler(handler ChatHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chatHandler = handler
}

// HandleChat passes a chat request to the handler. It returns a nil
// channel when no handler is set.
func (h *Hub) HandleChat(ctx context.Context, req ChatRequest) (<-chan []byte, error) {
	h.mu.RLock()
	handler := h.chatHandler
	h.mu.RUnlock()

	if handler == nil {
		return nil, nil
	}
	return handler(ctx, req)
}

// Run serves register, unregister and broadcast requests until ctx ends.
// On return every client's send channel is closed.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for client := range h.clients {
			h.drop(client)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Info().Str("client_id", client.id).Msg("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client)
			h.mu.Unlock()
			logger.Info().Str("client_id", client.id).Msg("WebSocket client disconnected")

		case msg := <-h.broadcast:
			h.mu.RLock()
			targets := h.clients
			if msg.Session != "" {
				targets = h.sessions[msg.Session]
			}
			for client := range targets {
				select {
				case client.send <- msg.Data:
				default:
					logger.Warn().Str("client_id", client.id).Msg("WebSocket send buffer full, frame dropped")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// drop removes a client; h.mu must be held.
func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	for session := range client.sessions {
		if clients, ok := h.sessions[session]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.sessions, session)
			}
		}
	}
}

// Register adds a client. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe adds a client to a session's subscriber list.
func (h *Hub) Subscribe(client *Client, session string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.sessions[session] = true
	if h.sessions[session] == nil {
		h.sessions[session] = make(map[*Client]bool)
	}
	h.sessions[session][client] = true

	logger.Debug().Str("client_id", client.id).Str("session", session).Msg("Client subscribed to session")
}

// Unsubscribe removes a client from a session's subscriber list.
func (h *Hub) Unsubscribe(client *Client, session string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(client.sessions, session)
	if clients, ok := h.sessions[session]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.sessions, session)
		}
	}
}

// Broadcast sends data to all clients subscribed to session.
func (h *Hub) Broadcast(session string, data []byte) {
	select {
	case h.broadcast <- &BroadcastMessage{Session: session, Data: data}:
	case <-h.done:
	}
}

// BroadcastAll sends data to every connected client.
func (h *Hub) BroadcastAll(data []byte) {
	h.Broadcast("", data)
}

// BroadcastTyped sends a frame of the given type with payload as Data to
// every connected client.
func (h *Hub) BroadcastTyped(messageType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Str("type", messageType).Msg("Failed to marshal broadcast payload")
		return err
	}
	h.BroadcastAll(Encode(WSMessage{Type: messageType, Data: data}))
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
