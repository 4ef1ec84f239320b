package assistant

import "pawbot/internal/knowledge"

// State is the confirmation state of a conversation after a turn.
type State string

// State values.
const (
	StateIdle     State = "idle"
	StateAwaiting State = "awaiting_confirmation"
)

// Inbound is one user message as received from a transport.
type Inbound struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id,omitempty"`
	Text           string `json:"text"`
	// Private is false for group chats, where only addressed messages
	// are answered.
	Private bool `json:"private"`
}

// Reply is the assistant's answer to one Inbound message.
type Reply struct {
	// Text is the answer as stored in history.
	Text string `json:"text"`
	// Notice is an extra message sent before the answer, e.g. when the
	// history was rolled over.
	Notice string `json:"notice,omitempty"`
	// Parts is what the transport sends, split to its size limit.
	Parts []string `json:"parts"`
	// TokensLeft is the context size left after this turn; -1 when no
	// model call was made.
	TokensLeft int                    `json:"tokens_left"`
	State      State                  `json:"state"`
	Sources    []knowledge.Provenance `json:"sources,omitempty"`
	// Attachment is a local file to deliver with the reply.
	Attachment string `json:"attachment,omitempty"`
}
