package history

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawbot/internal/provider"
	"pawbot/internal/session"
)

const systemPrompt = "Ты Душнилла, консультант зоомагазина «Четыре Лапы — и не только»."

// mockProvider implements provider.Provider for testing.
type mockProvider struct {
	calls    int
	requests []provider.ChatRequest
	chatFunc func(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error)
}

func (m *mockProvider) Name() string {
	return "mock"
}

func (m *mockProvider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	m.calls++
	m.requests = append(m.requests, req)
	if m.chatFunc != nil {
		return m.chatFunc(ctx, req)
	}
	return &provider.ChatResponse{Content: "Клиент спрашивал про корм для собак."}, nil
}

type recordingSaver struct {
	saved []*session.Session
	err   error
}

func (r *recordingSaver) Save(ctx context.Context, sess *session.Session) error {
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, sess.Clone())
	return nil
}

func newSession(turns int) *session.Session {
	sess := &session.Session{
		ConversationID: "chat-1",
		Messages:       []provider.Message{provider.SystemMessage(systemPrompt)},
	}
	for i := 0; i < turns; i++ {
		sess.Append(
			provider.UserMessage(fmt.Sprintf("Вопрос номер %d про корм для собак", i)),
			provider.AssistantMessage(fmt.Sprintf("Ответ номер %d: берите сухой корм", i)),
		)
	}
	return sess
}

func smallConfig() Config {
	return Config{
		Window:           20,
		MaxTokens:        400,
		ReserveTokens:    100,
		SummaryAttempts:  2,
		SummaryMaxTokens: 200,
		Model:            "gpt-4o-mini",
	}
}

func TestEnforce_WindowTrim(t *testing.T) {
	prov := &mockProvider{}
	m := NewManager(Config{Window: 4, Model: "gpt-4o-mini"}, prov, nil)
	sess := newSession(5)

	err := m.Enforce(context.Background(), sess, provider.UserMessage("новый вопрос"), 0)
	require.NoError(t, err)

	require.Len(t, sess.Messages, 1+4+1)
	assert.Equal(t, provider.RoleSystem, sess.Messages[0].Role)
	assert.Equal(t, "Вопрос номер 3 про корм для собак", sess.Messages[1].Content)
	assert.Equal(t, "новый вопрос", sess.Messages[5].Content)
	assert.Equal(t, 0, prov.calls)
	assert.Equal(t, 0, sess.Epoch)
}

func TestEnforce_SummarizesLongHistory(t *testing.T) {
	prov := &mockProvider{}
	saver := &recordingSaver{}
	m := NewManager(smallConfig(), prov, saver)
	sess := newSession(50)

	err := m.Enforce(context.Background(), sess, provider.UserMessage("а что с кошками?"), 0)
	require.NoError(t, err)

	require.Len(t, sess.Messages, 3)
	assert.Equal(t, provider.SystemMessage(systemPrompt), sess.Messages[0])
	assert.Equal(t, provider.RoleSystem, sess.Messages[1].Role)
	assert.Equal(t, SummaryPrefix+"Клиент спрашивал про корм для собак.", sess.Messages[1].Content)
	assert.Equal(t, provider.UserMessage("а что с кошками?"), sess.Messages[2])
	assert.Equal(t, 1, sess.Epoch)
	assert.LessOrEqual(t, m.Estimator().Messages(sess.Messages), m.Limit())

	// the rollover epoch is persisted without the incoming message
	require.Len(t, saver.saved, 1)
	assert.Equal(t, 1, saver.saved[0].Epoch)
	assert.Len(t, saver.saved[0].Messages, 2)

	// only windowed dialogue is sent for summarization
	require.Len(t, prov.requests, 1)
	req := prov.requests[0].Messages[0].Content
	assert.Contains(t, req, "Вопрос номер 49")
	assert.NotContains(t, req, "Вопрос номер 39 ")
	assert.Equal(t, 200, prov.requests[0].MaxTokens)
}

func TestTrim_NeverSummarizes(t *testing.T) {
	prov := &mockProvider{}
	saver := &recordingSaver{}
	m := NewManager(smallConfig(), prov, saver)
	sess := newSession(50)

	err := m.Trim(context.Background(), sess, provider.UserMessage("а что с кошками?"), 0)
	require.NoError(t, err)

	assert.Equal(t, 0, prov.calls)
	assert.Empty(t, saver.saved)
	assert.Equal(t, 0, sess.Epoch)
	assert.Equal(t, provider.SystemMessage(systemPrompt), sess.Messages[0])
	assert.Equal(t, "а что с кошками?", sess.Messages[len(sess.Messages)-1].Content)
	assert.LessOrEqual(t, m.Estimator().Messages(sess.Messages), m.Limit())
}

func TestEnforce_PriorSummaryIsIncluded(t *testing.T) {
	prov := &mockProvider{}
	m := NewManager(smallConfig(), prov, nil)
	sess := newSession(0)
	sess.Append(provider.SystemMessage(SummaryPrefix + "Раньше обсуждали попугаев."))
	for i := 0; i < 20; i++ {
		sess.Append(provider.UserMessage(strings.Repeat("корм ", 10)))
	}

	require.NoError(t, m.Enforce(context.Background(), sess, provider.UserMessage("ещё"), 0))
	require.Len(t, prov.requests, 1)
	assert.Contains(t, prov.requests[0].Messages[0].Content, "Раньше обсуждали попугаев.")

	summaries := 0
	for _, msg := range sess.Messages {
		if strings.HasPrefix(msg.Content, SummaryPrefix) {
			summaries++
		}
	}
	assert.Equal(t, 1, summaries)
}

func TestEnforce_SummaryFailureTruncates(t *testing.T) {
	prov := &mockProvider{chatFunc: func(context.Context, provider.ChatRequest) (*provider.ChatResponse, error) {
		return nil, errors.New("model down")
	}}
	saver := &recordingSaver{}
	m := NewManager(smallConfig(), prov, saver)
	sess := newSession(50)

	err := m.Enforce(context.Background(), sess, provider.UserMessage("а что с кошками?"), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, prov.calls)
	assert.Equal(t, 0, sess.Epoch)
	assert.Empty(t, saver.saved)
	assert.Equal(t, provider.RoleSystem, sess.Messages[0].Role)
	assert.Equal(t, "а что с кошками?", sess.Messages[len(sess.Messages)-1].Content)
	assert.Greater(t, len(sess.Messages), 2)
	assert.LessOrEqual(t, m.Estimator().Messages(sess.Messages), m.Limit())
}

func TestEnforce_EmptySummaryCountsAsFailure(t *testing.T) {
	prov := &mockProvider{chatFunc: func(context.Context, provider.ChatRequest) (*provider.ChatResponse, error) {
		return &provider.ChatResponse{Content: "  "}, nil
	}}
	m := NewManager(smallConfig(), prov, nil)
	sess := newSession(50)

	require.NoError(t, m.Enforce(context.Background(), sess, provider.UserMessage("?"), 0))
	assert.Equal(t, 0, sess.Epoch)
	assert.LessOrEqual(t, m.Estimator().Messages(sess.Messages), m.Limit())
}

func TestEnforce_NoProviderTruncates(t *testing.T) {
	m := NewManager(smallConfig(), nil, nil)
	sess := newSession(50)

	require.NoError(t, m.Enforce(context.Background(), sess, provider.UserMessage("?"), 0))
	assert.LessOrEqual(t, m.Estimator().Messages(sess.Messages), m.Limit())
}

func TestEnforce_SaverErrorPropagates(t *testing.T) {
	saveErr := &session.StorageError{Op: "save", Err: errors.New("disk full")}
	m := NewManager(smallConfig(), &mockProvider{}, &recordingSaver{err: saveErr})
	sess := newSession(50)

	err := m.Enforce(context.Background(), sess, provider.UserMessage("?"), 0)
	assert.ErrorIs(t, err, session.ErrStorage)
}

func TestEnforce_OversizedIncomingIsClipped(t *testing.T) {
	m := NewManager(smallConfig(), &mockProvider{}, nil)
	sess := newSession(0)
	huge := strings.Repeat("очень длинное сообщение ", 500)

	require.NoError(t, m.Enforce(context.Background(), sess, provider.UserMessage(huge), 0))

	assert.LessOrEqual(t, m.Estimator().Messages(sess.Messages), m.Limit())
	assert.Equal(t, provider.SystemMessage(systemPrompt), sess.Messages[0])
	last := sess.Messages[len(sess.Messages)-1]
	assert.Equal(t, provider.RoleUser, last.Role)
	assert.NotEmpty(t, last.Content)
	assert.True(t, strings.HasPrefix(huge, last.Content))
}

func TestEnforce_OversizedInstructionIsClipped(t *testing.T) {
	m := NewManager(smallConfig(), nil, nil)
	sess := &session.Session{
		ConversationID: "chat-1",
		Messages:       []provider.Message{provider.SystemMessage(strings.Repeat("правило ", 1000))},
	}
	incoming := strings.Repeat("вопрос ", 1000)

	require.NoError(t, m.Enforce(context.Background(), sess, provider.UserMessage(incoming), 0))

	assert.LessOrEqual(t, m.Estimator().Messages(sess.Messages), m.Limit())
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, provider.RoleSystem, sess.Messages[0].Role)
	assert.Equal(t, provider.RoleUser, sess.Messages[1].Role)
}

func TestEnforce_ExtraReserve(t *testing.T) {
	m := NewManager(smallConfig(), nil, nil)
	sess := newSession(3)

	require.NoError(t, m.Enforce(context.Background(), sess, provider.UserMessage("?"), 150))
	assert.LessOrEqual(t, m.Estimator().Messages(sess.Messages), m.Limit()-150)
}

func TestEnforce_ReserveLargerThanContext(t *testing.T) {
	m := NewManager(Config{MaxTokens: 100, ReserveTokens: 5000, Model: "gpt-4o"}, nil, nil)
	assert.Equal(t, MinBudget, m.Limit())

	sess := newSession(10)
	require.NoError(t, m.Enforce(context.Background(), sess, provider.UserMessage("привет"), 0))
	assert.LessOrEqual(t, m.Estimator().Messages(sess.Messages), m.Limit())
}

func TestEnforce_BudgetProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	words := []string{"корм", "dog", "кошка", "🐾", "price", "лапы", "поводок", "aquarium"}
	text := func(n int) string {
		parts := make([]string, n)
		for i := range parts {
			parts[i] = words[rng.Intn(len(words))]
		}
		return strings.Join(parts, " ")
	}

	for i := 0; i < 200; i++ {
		cfg := Config{
			Window:        1 + rng.Intn(30),
			MaxTokens:     50 + rng.Intn(800),
			ReserveTokens: rng.Intn(400),
			Model:         []string{"gpt-4o-mini", "gpt-4", "llama3"}[rng.Intn(3)],
		}
		var prov provider.Provider
		if rng.Intn(2) == 0 {
			prov = &mockProvider{chatFunc: func(context.Context, provider.ChatRequest) (*provider.ChatResponse, error) {
				return &provider.ChatResponse{Content: text(1 + rng.Intn(200))}, nil
			}}
		}
		m := NewManager(cfg, prov, nil)

		sess := &session.Session{
			ConversationID: "prop",
			Messages:       []provider.Message{provider.SystemMessage(text(1 + rng.Intn(300)))},
		}
		for j := rng.Intn(60); j > 0; j-- {
			sess.Append(provider.UserMessage(text(rng.Intn(100))))
		}

		extra := rng.Intn(200)
		require.NoError(t, m.Enforce(context.Background(), sess, provider.UserMessage(text(rng.Intn(1500))), extra))

		got := m.Estimator().Messages(sess.Messages)
		require.LessOrEqual(t, got, m.Limit(), "iteration %d: cfg=%+v", i, cfg)
		require.Equal(t, provider.RoleSystem, sess.Messages[0].Role, "iteration %d", i)
		require.Equal(t, provider.RoleUser, sess.Messages[len(sess.Messages)-1].Role, "iteration %d", i)
	}
}
