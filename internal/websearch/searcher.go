// Package websearch answers queries that the local knowledge base could not.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pawbot/internal/provider"
	"pawbot/pkg/logger"
)

// ErrEmptyQuery is returned for a blank query.
var ErrEmptyQuery = errors.New("websearch: empty query")

// Searcher is the external search collaborator.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// SearcherFunc adapts a function to the Searcher interface.
type SearcherFunc func(ctx context.Context, query string) (string, error)

// Search implements Searcher.
func (f SearcherFunc) Search(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

const searchSystemPrompt = "Ты — ассистент сети зоомагазинов «Четыре Лапы — и не только». " +
	"Отвечай по-русски, кратко и по делу. " +
	"Если запрос связан с домашними животными, зоотоварами или уходом, используй экспертизу бренда. " +
	"Если тема иная, всё равно помоги, но можешь ненавязчиво напомнить о бренде."

// ModelSearcher asks the language model to look the query up.
type ModelSearcher struct {
	provider    provider.Provider
	model       string
	maxTokens   int
	temperature float64
}

var _ Searcher = (*ModelSearcher)(nil)

// NewModelSearcher creates a searcher backed by p.
func NewModelSearcher(p provider.Provider, model string) *ModelSearcher {
	return &ModelSearcher{
		provider:    p,
		model:       model,
		maxTokens:   800,
		temperature: 0.2,
	}
}

// Search implements Searcher.
func (s *ModelSearcher) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}

	resp, err := s.provider.Chat(ctx, provider.ChatRequest{
		Model: s.model,
		Messages: []provider.Message{
			provider.SystemMessage(searchSystemPrompt),
			provider.UserMessage("Найди в интернете и кратко ответь на запрос: " + query),
		},
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("websearch: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", errors.New("websearch: empty answer")
	}
	logger.Debug().Int("chars", len([]rune(text))).Msg("web search answered")
	return text, nil
}
