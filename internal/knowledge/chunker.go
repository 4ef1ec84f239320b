package knowledge

import (
	"regexp"
	"strings"
	"unicode"
)

// Piece is a run of text that shares one page and section.
type Piece struct {
	Text    string
	Page    int
	Section string
}

// Chunker splits text into overlapping character windows.
type Chunker struct {
	maxChars int
	overlap  int
}

// ChunkerOptions configures the Chunker
type ChunkerOptions struct {
	MaxChars int // Default 800
	Overlap  int // Default 100
}

// DefaultChunkerOptions returns the default chunker configuration
func DefaultChunkerOptions() ChunkerOptions {
	return ChunkerOptions{MaxChars: 800, Overlap: 100}
}

// NewChunker creates a new Chunker with the given options
func NewChunker(opts ChunkerOptions) *Chunker {
	if opts.MaxChars <= 0 {
		opts.MaxChars = 800
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if opts.Overlap >= opts.MaxChars {
		opts.Overlap = opts.MaxChars / 8
	}
	return &Chunker{maxChars: opts.MaxChars, overlap: opts.Overlap}
}

// Split cuts text into windows of at most MaxChars runes, preferring to end
// a window on whitespace, with Overlap runes repeated between neighbours.
func (c *Chunker) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= c.maxChars {
		return []string{string(runes)}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.maxChars
		if end >= len(runes) {
			end = len(runes)
		} else if cut := lastSpace(runes[start:end]); cut > c.maxChars*4/5 {
			end = start + cut
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(runes) {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

var headerRegex = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+?)[ \t]*#*[ \t]*$`)

// Pieces splits a document into page and section runs. Form feeds start a
// new page; pages are numbered only when the document has more than one.
// Markdown headers name the section of the text that follows them.
func Pieces(text string, markdown bool) []Piece {
	pages := strings.Split(text, "\f")
	paged := len(pages) > 1

	var out []Piece
	for i, page := range pages {
		num := 0
		if paged {
			num = i + 1
		}
		if !markdown {
			if strings.TrimSpace(page) != "" {
				out = append(out, Piece{Text: page, Page: num})
			}
			continue
		}
		out = append(out, sections(page, num)...)
	}
	return out
}

func sections(text string, page int) []Piece {
	matches := headerRegex.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []Piece{{Text: text, Page: page}}
	}

	var out []Piece
	if pre := text[:matches[0][0]]; strings.TrimSpace(pre) != "" {
		out = append(out, Piece{Text: pre, Page: page})
	}
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := text[m[0]:end]
		if strings.TrimSpace(body) == "" {
			continue
		}
		out = append(out, Piece{
			Text:    body,
			Page:    page,
			Section: strings.TrimSpace(text[m[2]:m[3]]),
		})
	}
	return out
}
