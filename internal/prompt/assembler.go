package prompt

import (
	"fmt"
	"strings"

	"pawbot/internal/knowledge"
	"pawbot/internal/provider"
	"pawbot/internal/session"
)

// ContextMessage renders the retrieval-context system message. It returns
// false when the retrieval is empty.
func ContextMessage(r knowledge.Retrieval) (provider.Message, bool, error) {
	if r.Empty() {
		return provider.Message{}, false, nil
	}

	var sb strings.Builder
	if err := contextTmpl.Execute(&sb, r); err != nil {
		return provider.Message{}, false, fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}
	return provider.SystemMessage(sb.String()), true, nil
}

// Assemble returns the message list for a model call: the leading system
// entries of the session, the retrieval context if any, then the dialogue.
// The new user message is expected to be the session's last entry already.
// The session is never modified; the result is a fresh slice.
func Assemble(sess *session.Session, r knowledge.Retrieval) ([]provider.Message, error) {
	ctxMsg, ok, err := ContextMessage(r)
	if err != nil {
		return nil, err
	}

	lead := 0
	for lead < len(sess.Messages) && sess.Messages[lead].Role == provider.RoleSystem {
		lead++
	}

	out := make([]provider.Message, 0, len(sess.Messages)+1)
	out = append(out, sess.Messages[:lead]...)
	if ok {
		out = append(out, ctxMsg)
	}
	out = append(out, sess.Messages[lead:]...)
	return out, nil
}
