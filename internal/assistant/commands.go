package assistant

import (
	"context"
	"fmt"
	"strconv"

	"pawbot/internal/knowledge"
	"pawbot/internal/prompt"
	"pawbot/internal/provider"
	"pawbot/internal/session"
	"pawbot/pkg/logger"
)

func (a *Assistant) command(ctx context.Context, id, raw string, cmd *prompt.SlashCommand) (*Reply, error) {
	logger.Conversation(id).Debug().Str("command", cmd.Name).Msg("slash command")

	switch cmd.Name {
	case "clear":
		sess, err := a.store.Load(ctx, id, true)
		if err != nil {
			return a.fail(nil, err)
		}
		return a.reply(sess, clearedText, "", -1), nil

	case "search":
		return a.search(ctx, id, raw, cmd.Rest)

	case "source":
		sess, err := a.store.Load(ctx, id, false)
		if err != nil {
			return a.fail(nil, err)
		}
		n := 1
		if len(cmd.Args) > 0 {
			if v, err := strconv.Atoi(cmd.Args[0]); err == nil {
				n = v
			}
		}
		return a.source(sess, n)

	default: // help, start
		return a.reply(nil, fmt.Sprintf(helpText, a.cfg.Name), "", -1), nil
	}
}

// search answers /search directly and records the exchange.
func (a *Assistant) search(ctx context.Context, id, raw, query string) (*Reply, error) {
	if query == "" {
		return a.reply(nil, emptySearchText, "", -1), nil
	}
	if a.searcher == nil {
		return a.fail(nil, ErrNoSearcher)
	}

	sess, err := a.store.Load(ctx, id, false)
	if err != nil {
		return a.fail(nil, err)
	}
	result, err := a.searcher.Search(ctx, query)
	if err != nil {
		return a.fail(sess, err)
	}

	notice, err := a.enforce(ctx, sess, raw, 0, true)
	if err != nil {
		return a.fail(sess, err)
	}
	sess.Append(provider.AssistantMessage(result))
	if err := a.store.Save(ctx, sess); err != nil {
		return a.fail(sess, err)
	}
	return a.reply(sess, result, notice, -1), nil
}

// source resolves the n-th (1-based) source of the last retrieval.
func (a *Assistant) source(sess *session.Session, n int) (*Reply, error) {
	if len(sess.LastSources) == 0 || a.resolver == nil {
		return a.reply(sess, noSourcesText, "", -1), nil
	}
	if n < 1 || n > len(sess.LastSources) {
		return a.reply(sess, fmt.Sprintf(badSourceText, n, len(sess.LastSources)), "", -1), nil
	}

	src := sess.LastSources[n-1]
	path, err := a.resolver.Resolve(src.Source)
	if err != nil {
		logger.Conversation(sess.ConversationID).Warn().Err(err).Str("source", src.Source).Msg("source not resolved")
		return a.reply(sess, fmt.Sprintf(missingFileText, src.Source), "", -1), nil
	}

	rep := a.reply(sess, fmt.Sprintf(attachmentText, src.String()), "", -1)
	rep.Attachment = path
	rep.Sources = []knowledge.Provenance{src}
	return rep, nil
}
