package session

import (
	"pawbot/internal/knowledge"
	"pawbot/internal/provider"
)

// PendingConfirmation is set while the assistant waits for a yes/no answer
// to an external search offer.
type PendingConfirmation struct {
	Query string `json:"query"`
	// Attempts counts unrecognized replies so far.
	Attempts int `json:"attempts,omitempty"`
}

// Session is one conversation's state for its current epoch.
type Session struct {
	ConversationID string                 `json:"conversation_id"`
	Epoch          int                    `json:"epoch"`
	Messages       []provider.Message     `json:"messages"`
	Pending        *PendingConfirmation   `json:"pending,omitempty"`
	LastSources    []knowledge.Provenance `json:"last_sources,omitempty"`
}

// Awaiting reports whether a fallback confirmation is outstanding.
func (s *Session) Awaiting() bool {
	return s.Pending != nil
}

// Append adds messages to the end of the history.
func (s *Session) Append(msgs ...provider.Message) {
	s.Messages = append(s.Messages, msgs...)
}

// Last returns the final message, if any.
func (s *Session) Last() (provider.Message, bool) {
	if len(s.Messages) == 0 {
		return provider.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = append([]provider.Message(nil), s.Messages...)
	c.LastSources = append([]knowledge.Provenance(nil), s.LastSources...)
	if s.Pending != nil {
		p := *s.Pending
		c.Pending = &p
	}
	return &c
}

type epochPointer struct {
	Epoch int `json:"epoch"`
}
