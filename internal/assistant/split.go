package assistant

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	codeFence  = "```"
	codePrefix = "```\n"
	codeSuffix = "\n```"
)

var (
	// sentenceBreak matches paragraph and sentence ends.
	sentenceBreak = regexp.MustCompile(`\n\n|[.?!]\s`)
	fenceLang     = regexp.MustCompile(`^[\w+#.-]*$`)
)

// SplitMessage cuts text into parts of at most limit runes. Code blocks are
// split on their own and every piece of a block is re-wrapped in fences, so
// no part leaves a fence open.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = 4096
	}

	var parts []string
	for i, seg := range strings.Split(text, codeFence) {
		if i%2 == 0 {
			parts = append(parts, splitText(seg, limit, "", "")...)
			continue
		}
		// drop the language tag line; it cannot be repeated per piece
		if nl := strings.IndexByte(seg, '\n'); nl >= 0 && fenceLang.MatchString(seg[:nl]) {
			seg = seg[nl+1:]
		}
		parts = append(parts, splitText(strings.TrimRight(seg, "\n"), limit, codePrefix, codeSuffix)...)
	}
	return parts
}

func splitText(text string, limit int, prefix, suffix string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	room := limit - utf8.RuneCountInString(prefix) - utf8.RuneCountInString(suffix)
	if room < 1 {
		room = 1
	}
	if utf8.RuneCountInString(text) <= room {
		if prefix == "" {
			text = strings.TrimSpace(text)
		}
		return []string{prefix + text + suffix}
	}

	var out []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, prefix+s+suffix)
		}
		cur.Reset()
		curLen = 0
	}

	for _, piece := range pieces(text) {
		n := utf8.RuneCountInString(piece)
		if curLen+n <= room {
			cur.WriteString(piece)
			curLen += n
			continue
		}
		flush()
		// a single sentence longer than the limit is cut hard
		for n > room {
			runes := []rune(piece)
			out = append(out, prefix+string(runes[:room])+suffix)
			piece = string(runes[room:])
			n -= room
		}
		cur.WriteString(piece)
		curLen = n
	}
	flush()
	return out
}

// pieces splits text after every sentence break.
func pieces(text string) []string {
	var out []string
	last := 0
	for _, m := range sentenceBreak.FindAllStringIndex(text, -1) {
		out = append(out, text[last:m[1]])
		last = m[1]
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}
