package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawbot/internal/provider"
	"pawbot/internal/session"
	"pawbot/internal/websearch"
)

type mockSearcher struct {
	queries []string
	result  string
	err     error
}

func (m *mockSearcher) Search(ctx context.Context, query string) (string, error) {
	m.queries = append(m.queries, query)
	return m.result, m.err
}

func armedSession(t *testing.T, m *Machine) *session.Session {
	t.Helper()
	sess := &session.Session{
		ConversationID: "100",
		Messages: []provider.Message{
			provider.SystemMessage("Ты — Душнилла."),
			provider.UserMessage("what are the store hours"),
		},
	}
	text := m.Arm(sess, "what are the store hours")
	require.Contains(t, text, "what are the store hours")
	return sess
}

func countRole(msgs []provider.Message, role provider.Role) int {
	n := 0
	for _, m := range msgs {
		if m.Role == role {
			n++
		}
	}
	return n
}

func TestMachine_Arm(t *testing.T) {
	m := NewMachine(&mockSearcher{}, DefaultConfig())
	sess := armedSession(t, m)

	require.True(t, sess.Awaiting())
	assert.Equal(t, "what are the store hours", sess.Pending.Query)
	assert.Len(t, sess.Messages, 3)
	last, _ := sess.Last()
	assert.Equal(t, provider.RoleAssistant, last.Role)

	// arming again only re-asks
	m.Arm(sess, "something else")
	assert.Equal(t, "what are the store hours", sess.Pending.Query)
	assert.Len(t, sess.Messages, 3)
}

func TestMachine_Affirmative(t *testing.T) {
	searcher := &mockSearcher{result: "Магазины работают с 9 до 21."}
	m := NewMachine(searcher, DefaultConfig())
	sess := armedSession(t, m)
	assistantBefore := countRole(sess.Messages, provider.RoleAssistant)

	out, err := m.Resolve(context.Background(), sess, "да")
	require.NoError(t, err)

	assert.Equal(t, Affirmative, out.Answer)
	assert.True(t, out.Searched)
	assert.True(t, out.Idle)
	assert.False(t, sess.Awaiting())
	assert.Equal(t, []string{"what are the store hours"}, searcher.queries)
	assert.Equal(t, assistantBefore+1, countRole(sess.Messages, provider.RoleAssistant))
	last, _ := sess.Last()
	assert.Equal(t, provider.AssistantMessage("Магазины работают с 9 до 21."), last)
}

func TestMachine_Negative(t *testing.T) {
	searcher := &mockSearcher{result: "unused"}
	m := NewMachine(searcher, DefaultConfig())
	sess := armedSession(t, m)
	assistantBefore := countRole(sess.Messages, provider.RoleAssistant)

	out, err := m.Resolve(context.Background(), sess, "нет")
	require.NoError(t, err)

	assert.Equal(t, Negative, out.Answer)
	assert.False(t, out.Searched)
	assert.False(t, sess.Awaiting())
	assert.Empty(t, searcher.queries)
	assert.Equal(t, assistantBefore+1, countRole(sess.Messages, provider.RoleAssistant))
	last, _ := sess.Last()
	assert.Equal(t, declineText, last.Content)
}

func TestMachine_UnrecognizedIsCapped(t *testing.T) {
	searcher := &mockSearcher{}
	m := NewMachine(searcher, Config{MaxUnrecognized: 3})
	sess := armedSession(t, m)
	before := len(sess.Messages)

	for i := 1; i <= 2; i++ {
		out, err := m.Resolve(context.Background(), sess, "а что у вас есть для кошек?")
		require.NoError(t, err)
		assert.Equal(t, Unrecognized, out.Answer)
		assert.False(t, out.Idle)
		assert.True(t, sess.Awaiting())
		assert.Equal(t, i, sess.Pending.Attempts)
		assert.Len(t, sess.Messages, before, "unrecognized replies are not recorded")
	}

	out, err := m.Resolve(context.Background(), sess, "хм")
	require.NoError(t, err)
	assert.True(t, out.Idle)
	assert.False(t, sess.Awaiting())
	assert.Equal(t, giveUpText, out.Text)
	assert.Empty(t, searcher.queries)
}

func TestMachine_SearchFailure(t *testing.T) {
	m := NewMachine(&mockSearcher{err: errors.New("quota exceeded")}, DefaultConfig())
	sess := armedSession(t, m)

	out, err := m.Resolve(context.Background(), sess, "давай")
	require.NoError(t, err)
	assert.Equal(t, searchFailedText, out.Text)
	assert.False(t, sess.Awaiting())
}

func TestMachine_SearchCancelledLeavesSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	searcher := websearch.SearcherFunc(func(ctx context.Context, q string) (string, error) {
		cancel()
		return "", ctx.Err()
	})
	m := NewMachine(searcher, DefaultConfig())
	sess := armedSession(t, m)
	before := sess.Clone()

	_, err := m.Resolve(ctx, sess, "yes")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, sess)
}

func TestMachine_ResolveIdle(t *testing.T) {
	m := NewMachine(nil, DefaultConfig())
	_, err := m.Resolve(context.Background(), &session.Session{}, "да")
	assert.ErrorIs(t, err, ErrNotAwaiting)
}
