package history

import (
	"context"
	"fmt"
	"strings"

	"pawbot/internal/provider"
	"pawbot/internal/session"
	"pawbot/internal/tokens"
	"pawbot/pkg/logger"
)

// SummaryPrefix marks the system entry that carries the rolled-up dialogue.
const SummaryPrefix = "Summary of prior conversation: "

const summaryPrompt = `Summarize the conversation below in 3 to 5 sentences, in the language the user writes in. Keep names, products, prices, decisions and open questions that matter for continuing the conversation. Reply with the summary only.

%s
Conversation:
%s`

// Saver persists a session after a summarization rollover.
type Saver interface {
	Save(ctx context.Context, sess *session.Session) error
}

// Manager enforces the token budget on a session.
type Manager struct {
	cfg       Config
	provider  provider.Provider
	estimator tokens.Estimator
	saver     Saver
}

// NewManager creates a Manager. prov may be nil, in which case overflowing
// histories are truncated instead of summarized.
func NewManager(cfg Config, prov provider.Provider, saver Saver) *Manager {
	cfg = cfg.normalize()
	return &Manager{
		cfg:       cfg,
		provider:  prov,
		estimator: tokens.ForModel(cfg.Model),
		saver:     saver,
	}
}

// Estimator returns the token estimator used for budgeting.
func (m *Manager) Estimator() tokens.Estimator {
	return m.estimator
}

// Limit is the largest prompt size Enforce ever leaves behind.
func (m *Manager) Limit() int {
	return m.cfg.MaxTokens - m.cfg.ReserveTokens
}

// Remaining reports how many tokens of the context window msgs leave free.
func (m *Manager) Remaining(msgs []provider.Message) int {
	return m.cfg.MaxTokens - m.estimator.Messages(msgs)
}

func (m *Manager) budget(extraReserve int) int {
	limit := m.Limit()
	b := limit - max(0, extraReserve)
	if b < MinBudget {
		b = min(MinBudget, limit)
	}
	return b
}

// Enforce fits sess.Messages plus incoming into the budget and appends
// incoming. extraReserve is subtracted on top of the reply reserve, e.g. for
// retrieval context that is sent alongside the history.
//
// Summarization problems never surface as errors; only a failed rollover
// save does. A rollover increments sess.Epoch.
func (m *Manager) Enforce(ctx context.Context, sess *session.Session, incoming provider.Message, extraReserve int) error {
	return m.enforce(ctx, sess, incoming, extraReserve, true)
}

// Trim is Enforce without summarization: it never calls the model and never
// rolls the epoch over. Overflow is handled by dropping and clipping.
func (m *Manager) Trim(ctx context.Context, sess *session.Session, incoming provider.Message, extraReserve int) error {
	return m.enforce(ctx, sess, incoming, extraReserve, false)
}

func (m *Manager) enforce(ctx context.Context, sess *session.Session, incoming provider.Message, extraReserve int, summarize bool) error {
	log := logger.Conversation(sess.ConversationID)
	budget := m.budget(extraReserve)

	w := split(sess.Messages)
	if len(w.dialogue) > m.cfg.Window {
		w.dialogue = w.dialogue[len(w.dialogue)-m.cfg.Window:]
	}

	if summarize && m.cost(w, incoming) > budget && len(w.dialogue) > 0 {
		summary, err := m.summarize(ctx, w)
		if err == nil {
			w.summary = &provider.Message{Role: provider.RoleSystem, Content: SummaryPrefix + summary}
			w.dialogue = nil
			sess.Messages = w.messages()
			sess.Epoch++
			log.Info().
				Int("epoch", sess.Epoch).
				Int("tokens", m.cost(w, incoming)).
				Int("budget", budget).
				Msg("history summarized")
			if m.saver != nil {
				if err := m.saver.Save(ctx, sess); err != nil {
					return fmt.Errorf("save rollover: %w", err)
				}
			}
		} else {
			log.Warn().Err(err).Msg("summarization failed, truncating history")
		}
	}

	for len(w.dialogue) > 0 && m.cost(w, incoming) > budget {
		drop := (len(w.dialogue) + 1) / 2
		w.dialogue = w.dialogue[drop:]
		log.Debug().Int("dropped", drop).Msg("dropped oldest dialogue entries")
	}

	if over := m.cost(w, incoming) - budget; over > 0 {
		incoming = m.clip(w, incoming, budget)
		log.Warn().Int("over", over).Int("budget", budget).Msg("clipped messages to fit budget")
	}

	sess.Messages = append(w.messages(), incoming)
	return nil
}

// clip shortens the summary, then the incoming message, then the
// instruction texts until the window fits the budget. A summary that cannot
// fit even when empty is removed.
func (m *Manager) clip(w *window, incoming provider.Message, budget int) provider.Message {
	fits := func() bool { return m.cost(w, incoming) <= budget }

	if w.summary != nil && !fits() {
		body := strings.TrimPrefix(w.summary.Content, SummaryPrefix)
		if !fitPrefix(body, func(s string) { w.summary.Content = SummaryPrefix + s }, fits) {
			w.summary = nil
		}
	}
	if !fits() {
		fitPrefix(incoming.Content, func(s string) { incoming.Content = s }, fits)
	}
	for i := len(w.instructions) - 1; i >= 0 && !fits(); i-- {
		fitPrefix(w.instructions[i].Content, func(s string) { w.instructions[i].Content = s }, fits)
	}
	return incoming
}

// fitPrefix applies the longest rune prefix of s for which fits holds.
// It returns false, with the empty prefix applied, when nothing fits.
func fitPrefix(s string, apply func(string), fits func() bool) bool {
	runes := []rune(s)
	apply("")
	if !fits() {
		return false
	}
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		apply(string(runes[:mid]))
		if fits() {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	apply(string(runes[:lo]))
	return true
}

func (m *Manager) cost(w *window, incoming provider.Message) int {
	return m.estimator.Messages(append(w.messages(), incoming))
}

// summarize asks the model for a short summary of the dialogue, retrying up
// to SummaryAttempts times.
func (m *Manager) summarize(ctx context.Context, w *window) (string, error) {
	if m.provider == nil {
		return "", ErrNoProvider
	}

	var sb strings.Builder
	for _, msg := range w.dialogue {
		sb.WriteString(fmt.Sprintf("[%s]: %s\n", msg.Role, msg.Content))
	}
	prior := ""
	if w.summary != nil {
		prior = "Earlier summary: " + strings.TrimPrefix(w.summary.Content, SummaryPrefix) + "\n"
	}

	req := provider.ChatRequest{
		Model:     m.cfg.Model,
		MaxTokens: m.cfg.SummaryMaxTokens,
		Messages: []provider.Message{
			provider.UserMessage(fmt.Sprintf(summaryPrompt, prior, sb.String())),
		},
	}

	var lastErr error
	for attempt := 1; attempt <= m.cfg.SummaryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		resp, err := m.provider.Chat(ctx, req)
		if err == nil {
			if text := strings.TrimSpace(resp.Content); text != "" {
				return text, nil
			}
			err = ErrEmptySummary
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: %v", ErrSummaryFailed, lastErr)
}

// window is a partitioned view of a message list.
type window struct {
	instructions []provider.Message
	summary      *provider.Message
	dialogue     []provider.Message
}

// split separates instruction entries, the summary entry and dialogue.
// Instructions and the summary keep their relative order at the front.
func split(msgs []provider.Message) *window {
	w := &window{}
	for _, msg := range msgs {
		switch {
		case msg.Role == provider.RoleSystem && strings.HasPrefix(msg.Content, SummaryPrefix):
			s := msg
			w.summary = &s
		case msg.Role == provider.RoleSystem:
			w.instructions = append(w.instructions, msg)
		default:
			w.dialogue = append(w.dialogue, msg)
		}
	}
	return w
}

func (w *window) messages() []provider.Message {
	out := make([]provider.Message, 0, len(w.instructions)+1+len(w.dialogue))
	out = append(out, w.instructions...)
	if w.summary != nil {
		out = append(out, *w.summary)
	}
	return append(out, w.dialogue...)
}
