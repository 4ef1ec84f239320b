// Package knowledge answers queries from the local document collection:
// ingestion, a BM25 index over SQLite and the retriever that turns hits into
// a bounded context block with provenance.
package knowledge

import (
	"context"
	"strings"

	"pawbot/internal/config"
	"pawbot/pkg/logger"
)

const passageSeparator = "\n\n"

// RetrieverConfig bounds what one retrieval may contribute to a prompt.
type RetrieverConfig struct {
	Enabled         bool
	TopK            int
	MinScore        float64
	MaxContextChars int
	MaxPassageChars int
}

// DefaultRetrieverConfig returns the default configuration.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		Enabled:         true,
		TopK:            4,
		MinScore:        0.2,
		MaxContextChars: 2500,
		MaxPassageChars: 900,
	}
}

// RetrieverConfigFrom maps the application configuration.
func RetrieverConfigFrom(cfg *config.Config) RetrieverConfig {
	return RetrieverConfig{
		Enabled:         cfg.Retrieval.Enabled,
		TopK:            cfg.Retrieval.TopK,
		MinScore:        cfg.Retrieval.MinScore,
		MaxContextChars: cfg.Retrieval.MaxContextChars,
		MaxPassageChars: cfg.Retrieval.MaxPassageChars,
	}
}

// Retriever queries an Index and formats the hits.
type Retriever struct {
	index Index
	cfg   RetrieverConfig
}

// NewRetriever creates a Retriever. index may be nil, in which case every
// retrieval is empty.
func NewRetriever(index Index, cfg RetrieverConfig) *Retriever {
	def := DefaultRetrieverConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = def.MaxContextChars
	}
	if cfg.MaxPassageChars <= 0 {
		cfg.MaxPassageChars = def.MaxPassageChars
	}
	return &Retriever{index: index, cfg: cfg}
}

// Retrieve returns the formatted context for query. Index failures are
// logged and yield the empty Retrieval; they are never returned.
func (r *Retriever) Retrieve(ctx context.Context, query string) Retrieval {
	if !r.cfg.Enabled || strings.TrimSpace(query) == "" {
		return Retrieval{}
	}
	if r.index == nil {
		logger.Warn().Msg("retrieval unavailable: no index configured")
		return Retrieval{}
	}

	hits, err := r.index.Search(ctx, query, r.cfg.TopK)
	if err != nil {
		logger.Warn().Err(err).Msg("retrieval unavailable")
		return Retrieval{}
	}

	out := r.format(hits)
	logger.Debug().
		Int("hits", len(hits)).
		Int("passages", len(out.Results)).
		Int("chars", len([]rune(out.Block))).
		Msg("retrieval finished")
	return out
}

func (r *Retriever) format(hits []Hit) Retrieval {
	var (
		out       Retrieval
		parts     []string
		remaining = r.cfg.MaxContextChars
		seen      = make(map[Provenance]bool)
	)

	for _, h := range hits {
		if h.Score < r.cfg.MinScore {
			continue
		}
		text := clipRunes(strings.TrimSpace(h.Text), r.cfg.MaxPassageChars)
		if text == "" {
			continue
		}

		sep := 0
		if len(parts) > 0 {
			sep = len([]rune(passageSeparator))
		}
		if remaining-sep <= 0 {
			break
		}
		truncated := false
		if n := len([]rune(text)); n+sep > remaining {
			text = clipRunes(text, remaining-sep)
			truncated = true
			if text == "" {
				break
			}
		}

		parts = append(parts, text)
		remaining -= sep + len([]rune(text))
		out.Results = append(out.Results, Result{
			Rank:    len(out.Results) + 1,
			Score:   h.Score,
			Text:    text,
			Source:  h.Source,
			Page:    h.Page,
			Section: h.Section,
		})

		p := Provenance{Source: h.Source, Page: h.Page, Section: h.Section}
		if p.Source != "" && !seen[p] {
			seen[p] = true
			out.Sources = append(out.Sources, p)
		}
		if truncated {
			break
		}
	}

	if len(parts) == 0 {
		return Retrieval{}
	}
	out.Block = strings.Join(parts, passageSeparator)
	return out
}

// clipRunes returns at most n runes of s, trimmed of trailing space.
func clipRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n]))
}
