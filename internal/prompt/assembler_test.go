package prompt

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawbot/internal/knowledge"
	"pawbot/internal/provider"
	"pawbot/internal/session"
)

func testSession() *session.Session {
	return &session.Session{
		ConversationID: "42",
		Messages: []provider.Message{
			provider.SystemMessage("Ты — Душнилла."),
			provider.SystemMessage("Summary of prior conversation: обсуждали корм."),
			provider.UserMessage("привет"),
			provider.AssistantMessage("привет!"),
			provider.UserMessage("во сколько открывается магазин?"),
		},
	}
}

func TestAssemble_WithRetrieval(t *testing.T) {
	sess := testSession()
	before := sess.Clone()

	r := knowledge.Retrieval{
		Block: "Магазин работает с 9 до 21.",
		Sources: []knowledge.Provenance{
			{Source: "hours.pdf", Page: 2},
			{Source: "faq.md", Section: "Часы"},
		},
	}

	msgs, err := Assemble(sess, r)
	require.NoError(t, err)
	require.Len(t, msgs, 6)

	assert.Equal(t, sess.Messages[0], msgs[0])
	assert.Equal(t, sess.Messages[1], msgs[1])
	assert.Equal(t, provider.RoleSystem, msgs[2].Role)
	assert.Contains(t, msgs[2].Content, "Магазин работает с 9 до 21.")
	assert.True(t, strings.HasSuffix(msgs[2].Content, "Sources:\n- hours.pdf, p. 2\n- faq.md, Часы"), msgs[2].Content)
	assert.Equal(t, provider.UserMessage("во сколько открывается магазин?"), msgs[5])

	if diff := cmp.Diff(before.Messages, sess.Messages); diff != "" {
		t.Errorf("session mutated (-before +after):\n%s", diff)
	}
}

func TestAssemble_NoSourcesNoFooter(t *testing.T) {
	msgs, err := Assemble(testSession(), knowledge.Retrieval{Block: "текст"})
	require.NoError(t, err)
	require.Len(t, msgs, 6)
	assert.NotContains(t, msgs[2].Content, "Sources:")
}

func TestAssemble_EmptyRetrieval(t *testing.T) {
	sess := testSession()
	msgs, err := Assemble(sess, knowledge.Retrieval{})
	require.NoError(t, err)

	if diff := cmp.Diff(sess.Messages, msgs); diff != "" {
		t.Errorf("unexpected messages (-want +got):\n%s", diff)
	}
	// fresh slice
	msgs[0].Content = "changed"
	assert.Equal(t, "Ты — Душнилла.", sess.Messages[0].Content)
}

func TestContextMessage_Empty(t *testing.T) {
	_, ok, err := ContextMessage(knowledge.Retrieval{})
	require.NoError(t, err)
	assert.False(t, ok)
}
