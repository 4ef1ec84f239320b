package knowledge

import (
	"context"
	"fmt"
)

// Hit is one passage returned by an Index.
type Hit struct {
	Text    string  `json:"text"`
	Source  string  `json:"source"`
	Page    int     `json:"page,omitempty"`
	Section string  `json:"section,omitempty"`
	Score   float64 `json:"score"`
}

// Index is the local document search collaborator.
type Index interface {
	Search(ctx context.Context, query string, topK int) ([]Hit, error)
}

// Result is a ranked hit after formatting. Ephemeral.
type Result struct {
	Rank    int     `json:"rank"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
	Source  string  `json:"source"`
	Page    int     `json:"page,omitempty"`
	Section string  `json:"section,omitempty"`
}

// Provenance identifies where a passage came from, without its text.
type Provenance struct {
	Source  string `json:"source"`
	Page    int    `json:"page,omitempty"`
	Section string `json:"section,omitempty"`
}

// String renders the provenance for a citation footer.
func (p Provenance) String() string {
	switch {
	case p.Page > 0 && p.Section != "":
		return fmt.Sprintf("%s, p. %d, %s", p.Source, p.Page, p.Section)
	case p.Page > 0:
		return fmt.Sprintf("%s, p. %d", p.Source, p.Page)
	case p.Section != "":
		return fmt.Sprintf("%s, %s", p.Source, p.Section)
	default:
		return p.Source
	}
}

// Retrieval is the outcome of one Retrieve call. The zero value means
// nothing usable was found.
type Retrieval struct {
	Results []Result     `json:"results,omitempty"`
	Block   string       `json:"block,omitempty"`
	Sources []Provenance `json:"sources,omitempty"`
}

// Empty reports whether the retrieval produced no context.
func (r Retrieval) Empty() bool {
	return r.Block == ""
}
