package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pawbot/internal/fallback"
	"pawbot/internal/history"
	"pawbot/internal/knowledge"
	"pawbot/internal/prompt"
	"pawbot/internal/provider"
	"pawbot/internal/session"
	"pawbot/internal/websearch"
	"pawbot/pkg/logger"
)

// Assistant handles conversation turns. It is safe for concurrent use;
// turns of one conversation run one at a time.
type Assistant struct {
	cfg       Config
	store     *session.Store
	locker    *session.Locker
	history   *history.Manager
	retriever *knowledge.Retriever
	fallback  *fallback.Machine
	provider  provider.Provider
	searcher  websearch.Searcher
	resolver  *knowledge.Resolver
	commands  *prompt.SlashCommandParser
}

// New creates an Assistant. prov should already retry transient failures.
func New(
	cfg Config,
	store *session.Store,
	hist *history.Manager,
	retriever *knowledge.Retriever,
	machine *fallback.Machine,
	prov provider.Provider,
) *Assistant {
	return &Assistant{
		cfg:       cfg.normalize(),
		store:     store,
		locker:    session.NewLocker(),
		history:   hist,
		retriever: retriever,
		fallback:  machine,
		provider:  prov,
		commands:  prompt.NewSlashCommandParser("clear", "search", "source", "help", "start"),
	}
}

// SetSearcher sets the searcher used by /search.
func (a *Assistant) SetSearcher(s websearch.Searcher) {
	a.searcher = s
}

// SetResolver sets the resolver used to deliver source documents.
func (a *Assistant) SetResolver(r *knowledge.Resolver) {
	a.resolver = r
}

// Store returns the session store.
func (a *Assistant) Store() *session.Store {
	return a.store
}

// Reset starts a new history epoch for the conversation, waiting for any
// turn in flight. It is /clear without the access checks.
func (a *Assistant) Reset(ctx context.Context, id string) (*session.Session, error) {
	unlock, err := a.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return a.store.Load(ctx, id, true)
}

// Handle runs one turn. A nil Reply with a nil error means the message was
// not meant for the assistant. When err is not nil the Reply, if any,
// carries the apology to show the user; the stored session is left at its
// last saved state.
func (a *Assistant) Handle(ctx context.Context, in Inbound) (*Reply, error) {
	if !a.allowed(in) {
		logger.Debug().Str("user_id", in.UserID).Msg("message from user not in allow list")
		return nil, nil
	}
	text, ok := a.addressed(in)
	if !ok {
		return nil, nil
	}

	if a.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.TurnTimeout)
		defer cancel()
	}

	unlock, err := a.locker.Lock(ctx, in.ConversationID)
	if err != nil {
		return a.fail(nil, err)
	}
	defer unlock()

	start := time.Now()
	reply, err := a.turn(ctx, in.ConversationID, text)
	log := logger.Conversation(in.ConversationID)
	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("turn failed")
		return reply, err
	}
	log.Info().
		Str("state", string(reply.State)).
		Int("tokens_left", reply.TokensLeft).
		Dur("duration", time.Since(start)).
		Msg("turn finished")
	return reply, nil
}

func (a *Assistant) turn(ctx context.Context, id, text string) (*Reply, error) {
	if cmd := a.commands.Parse(text); cmd != nil {
		return a.command(ctx, id, text, cmd)
	}

	sess, err := a.store.Load(ctx, id, false)
	if err != nil {
		return a.fail(nil, err)
	}

	if sess.Awaiting() {
		return a.confirm(ctx, sess, text)
	}
	if wantsSource(text) {
		return a.source(sess, 1)
	}

	retrieval := a.retriever.Retrieve(ctx, text)
	if retrieval.Empty() {
		return a.offer(ctx, sess, text)
	}
	return a.answer(ctx, sess, text, retrieval)
}

// confirm feeds a reply to a pending search offer.
func (a *Assistant) confirm(ctx context.Context, sess *session.Session, text string) (*Reply, error) {
	out, err := a.fallback.Resolve(ctx, sess, text)
	if err != nil {
		return a.fail(sess, err)
	}
	// unrecognized replies still change the attempt counter
	if err := a.store.Save(ctx, sess); err != nil {
		return a.fail(sess, err)
	}
	return a.reply(sess, out.Text, "", -1), nil
}

// offer records the question and arms the confirmation. No model call.
func (a *Assistant) offer(ctx context.Context, sess *session.Session, text string) (*Reply, error) {
	notice, err := a.enforce(ctx, sess, text, 0, false)
	if err != nil {
		return a.fail(sess, err)
	}
	question := a.fallback.Arm(sess, text)
	if err := a.store.Save(ctx, sess); err != nil {
		return a.fail(sess, err)
	}
	return a.reply(sess, question, notice, -1), nil
}

// answer runs the model with the retrieved context.
func (a *Assistant) answer(ctx context.Context, sess *session.Session, text string, r knowledge.Retrieval) (*Reply, error) {
	sess.LastSources = r.Sources

	ctxMsg, _, err := prompt.ContextMessage(r)
	if err != nil {
		return a.fail(sess, err)
	}
	notice, err := a.enforce(ctx, sess, text, a.history.Estimator().Message(ctxMsg), true)
	if err != nil {
		return a.fail(sess, err)
	}

	msgs, err := prompt.Assemble(sess, r)
	if err != nil {
		return a.fail(sess, err)
	}
	resp, err := a.provider.Chat(ctx, provider.ChatRequest{
		Model:       a.cfg.Model,
		Messages:    msgs,
		MaxTokens:   a.cfg.MaxOutputTokens,
		Temperature: a.cfg.Temperature,
	})
	if err != nil {
		return a.fail(sess, err)
	}

	content := strings.TrimSpace(resp.Content)
	sess.Append(provider.AssistantMessage(content))
	if err := a.store.Save(ctx, sess); err != nil {
		return a.fail(sess, err)
	}

	left := a.history.Remaining(sess.Messages)
	if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
		left = a.cfg.ContextTokens - resp.Usage.TotalTokens
	}
	rep := a.reply(sess, content, notice, left)
	rep.Sources = r.Sources
	return rep, nil
}

// enforce appends the user text within budget and reports a rollover.
// Without summarize the history is only trimmed and no model call is made.
func (a *Assistant) enforce(ctx context.Context, sess *session.Session, text string, extra int, summarize bool) (string, error) {
	before := sess.Epoch
	size := a.history.Estimator().Messages(sess.Messages)
	fit := a.history.Trim
	if summarize {
		fit = a.history.Enforce
	}
	if err := fit(ctx, sess, provider.UserMessage(text), extra); err != nil {
		return "", err
	}
	if sess.Epoch != before {
		return fmt.Sprintf(overTokenNotice, size), nil
	}
	return "", nil
}

func (a *Assistant) reply(sess *session.Session, text, notice string, tokensLeft int) *Reply {
	state := StateIdle
	if sess != nil && sess.Awaiting() {
		state = StateAwaiting
	}

	display := text
	if tokensLeft >= 0 {
		display += "\n\n" + fmt.Sprintf(tokensLeftNote, tokensLeft)
	}
	var parts []string
	if notice != "" {
		parts = append(parts, notice)
	}
	parts = append(parts, SplitMessage(display, a.cfg.ReplyLimit)...)

	return &Reply{
		Text:       text,
		Notice:     notice,
		Parts:      parts,
		TokensLeft: tokensLeft,
		State:      state,
	}
}

// fail maps an error to the apology shown to the user.
func (a *Assistant) fail(sess *session.Session, err error) (*Reply, error) {
	var text string
	switch {
	case errors.Is(err, session.ErrStorage):
		text = storageApology
	case errors.Is(err, context.DeadlineExceeded):
		text = timeoutApology
	case errors.Is(err, context.Canceled):
		return nil, err
	default:
		text = modelApology
	}
	rep := a.reply(nil, text, "", -1)
	if sess != nil && sess.Awaiting() {
		rep.State = StateAwaiting
	}
	return rep, err
}

func greeting(name string) string {
	return fmt.Sprintf(greetingText, name)
}
