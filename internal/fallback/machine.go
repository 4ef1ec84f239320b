// Package fallback implements the confirmation step that runs when the
// knowledge base has nothing for a query: the assistant offers an external
// search and waits for a yes or no. The state lives on the session.
package fallback

import (
	"context"
	"errors"
	"fmt"

	"pawbot/internal/config"
	"pawbot/internal/provider"
	"pawbot/internal/session"
	"pawbot/internal/websearch"
	"pawbot/pkg/logger"
)

// ErrNotAwaiting is returned by Resolve for a session without a pending offer.
var ErrNotAwaiting = errors.New("fallback: no pending confirmation")

const (
	offerText        = "В базе знаний ничего не нашлось по запросу «%s». Поискать в интернете? Ответь «да» или «нет»."
	reaskText        = "Не понял ответ 🙂 Поискать в интернете по запросу «%s»? Ответь «да» или «нет»."
	declineText      = "Хорошо, искать не буду. Если появятся вопросы, спрашивай!"
	giveUpText       = "Так и не понял ответ, поэтому искать не буду. Если нужно, задай вопрос заново."
	searchFailedText = "❌ Поиск сейчас недоступен, попробуй позже."
)

// Config controls the confirmation machine.
type Config struct {
	// MaxUnrecognized is how many unclear replies end the offer.
	// Default: 3
	MaxUnrecognized int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{MaxUnrecognized: 3}
}

// FromConfig maps the application configuration.
func FromConfig(cfg *config.Config) Config {
	return Config{MaxUnrecognized: cfg.Fallback.MaxUnrecognized}
}

// Outcome describes what Resolve did.
type Outcome struct {
	Answer Answer
	// Text is the message for the user.
	Text string
	// Searched is true when the external searcher was called.
	Searched bool
	// Idle is true when the session left the awaiting state.
	Idle bool
}

// Machine drives the IDLE / AWAITING_CONFIRMATION transitions.
type Machine struct {
	searcher websearch.Searcher
	vocab    *Vocabulary
	cfg      Config
}

// NewMachine creates a Machine. searcher may be nil; affirmative answers then
// get the search-failed message.
func NewMachine(searcher websearch.Searcher, cfg Config) *Machine {
	if cfg.MaxUnrecognized <= 0 {
		cfg.MaxUnrecognized = DefaultConfig().MaxUnrecognized
	}
	return &Machine{searcher: searcher, vocab: defaultVocabulary, cfg: cfg}
}

// Arm moves an idle session to AWAITING_CONFIRMATION for query and appends
// the offer as an assistant message. Arming an already awaiting session
// returns the re-ask text and changes nothing. The caller persists.
func (m *Machine) Arm(sess *session.Session, query string) string {
	if sess.Awaiting() {
		return fmt.Sprintf(reaskText, sess.Pending.Query)
	}

	text := fmt.Sprintf(offerText, query)
	sess.Pending = &session.PendingConfirmation{Query: query}
	sess.Append(provider.AssistantMessage(text))

	logger.Conversation(sess.ConversationID).Info().
		Int("epoch", sess.Epoch).
		Msg("retrieval empty, external search offered")
	return text
}

// Resolve applies the user's reply to an awaiting session.
//
// Affirmative and negative replies append the reply and exactly one
// assistant message and return the session to IDLE. Unrecognized replies
// append nothing until MaxUnrecognized is reached, which ends the offer like
// a decline. A cancelled context during the search returns the context error
// with the session unchanged. The caller persists.
func (m *Machine) Resolve(ctx context.Context, sess *session.Session, reply string) (Outcome, error) {
	if !sess.Awaiting() {
		return Outcome{}, ErrNotAwaiting
	}
	log := logger.Conversation(sess.ConversationID)
	pending := sess.Pending

	switch answer := m.vocab.Classify(reply); answer {
	case Affirmative:
		text, err := m.search(ctx, pending.Query)
		if err != nil {
			return Outcome{}, err
		}
		m.finish(sess, reply, text)
		log.Info().Str("answer", answer.String()).Msg("external search confirmed")
		return Outcome{Answer: answer, Text: text, Searched: true, Idle: true}, nil

	case Negative:
		m.finish(sess, reply, declineText)
		log.Info().Str("answer", answer.String()).Msg("external search declined")
		return Outcome{Answer: answer, Text: declineText, Idle: true}, nil

	default:
		pending.Attempts++
		if pending.Attempts >= m.cfg.MaxUnrecognized {
			m.finish(sess, reply, giveUpText)
			log.Info().Int("attempts", pending.Attempts).Msg("confirmation abandoned")
			return Outcome{Answer: answer, Text: giveUpText, Idle: true}, nil
		}
		log.Debug().Int("attempts", pending.Attempts).Msg("confirmation reply not recognized")
		return Outcome{Answer: answer, Text: fmt.Sprintf(reaskText, pending.Query)}, nil
	}
}

func (m *Machine) search(ctx context.Context, query string) (string, error) {
	if m.searcher == nil {
		return searchFailedText, nil
	}
	text, err := m.searcher.Search(ctx, query)
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	logger.Warn().Err(err).Str("query", query).Msg("external search failed")
	return searchFailedText, nil
}

func (m *Machine) finish(sess *session.Session, reply, text string) {
	sess.Append(provider.UserMessage(reply), provider.AssistantMessage(text))
	sess.Pending = nil
}
