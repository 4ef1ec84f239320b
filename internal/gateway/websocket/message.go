// Package websocket carries chat turns over WebSocket connections.
package websocket

import "encoding/json"

// WSMessage is the frame exchanged with clients in both directions.
type WSMessage struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`

	// chat input
	User    string `json:"user,omitempty"`
	Private *bool  `json:"private,omitempty"`

	// Message is the chat text on input and the part text on output.
	Message string `json:"message,omitempty"`
	Index   int    `json:"index,omitempty"`
	Code    string `json:"code,omitempty"`

	// Data is the payload of done and knowledge_synced frames.
	Data json.RawMessage `json:"data,omitempty"`
}

// BroadcastMessage wraps a frame with its target session.
type BroadcastMessage struct {
	Session string
	Data    []byte
}

// Message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeError       = "error"

	// TypeChat is a user message for the assistant.
	TypeChat = "chat"
	// TypePart is one transport-sized piece of a reply.
	TypePart = "part"
	// TypeDone ends a turn; Data holds the reply metadata.
	TypeDone = "done"

	TypeKnowledgeSynced = "knowledge_synced"
)

// Encode marshals a frame. WSMessage always marshals, so errors are dropped.
func Encode(msg WSMessage) []byte {
	data, _ := json.Marshal(msg)
	return data
}
