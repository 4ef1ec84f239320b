// Package tokens estimates how much of a model's context window a message
// list consumes.
package tokens

import (
	"strings"
	"unicode/utf8"

	"pawbot/internal/provider"
)

const (
	// MessageOverhead is charged per message for role and separators.
	MessageOverhead = 4
	// ReplyPriming is charged once per non-empty list for the reply header.
	ReplyPriming = 3
)

// Profile describes a tokenizer family by its average compression.
type Profile struct {
	Name string
	// asciiHalfChars is the number of ASCII bytes per token, doubled so
	// fractional ratios stay in integer math.
	asciiHalfChars int
	// runesPerToken is how many non-ASCII runes share one token.
	runesPerToken int
}

// Known profiles.
var (
	O200K   = Profile{Name: "o200k", asciiHalfChars: 8, runesPerToken: 2}
	CL100K  = Profile{Name: "cl100k", asciiHalfChars: 7, runesPerToken: 1}
	Generic = Profile{Name: "generic", asciiHalfChars: 6, runesPerToken: 1}
)

var o200kPrefixes = []string{"gpt-4o", "gpt-4.1", "gpt-4.5", "gpt-5", "o1", "o3", "o4", "chatgpt-4o"}

var cl100kPrefixes = []string{"gpt-4", "gpt-3.5", "text-embedding-3", "text-embedding-ada"}

// Estimator counts tokens for one model. The zero value uses Generic.
type Estimator struct {
	profile Profile
}

// ForModel returns the estimator for a model id. Unknown ids get Generic.
func ForModel(model string) Estimator {
	m := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(m, ":"); i >= 0 {
		m = m[i+1:]
	}
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}

	// o200k first: "gpt-4o" also matches the "gpt-4" prefix
	for _, p := range o200kPrefixes {
		if strings.HasPrefix(m, p) {
			return Estimator{profile: O200K}
		}
	}
	for _, p := range cl100kPrefixes {
		if strings.HasPrefix(m, p) {
			return Estimator{profile: CL100K}
		}
	}
	return Estimator{profile: Generic}
}

// Profile returns the tokenizer profile in use.
func (e Estimator) Profile() Profile {
	if e.profile.asciiHalfChars == 0 {
		return Generic
	}
	return e.profile
}

// Text estimates the token count of s, rounding up.
func (e Estimator) Text(s string) int {
	if s == "" {
		return 0
	}
	p := e.Profile()

	ascii, other := 0, 0
	for i := 0; i < len(s); {
		if s[i] < utf8.RuneSelf {
			ascii++
			i++
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		other++
		i += size
	}

	n := (2*ascii + p.asciiHalfChars - 1) / p.asciiHalfChars
	n += (other + p.runesPerToken - 1) / p.runesPerToken
	return n
}

// Message estimates a single message including its overhead.
func (e Estimator) Message(m provider.Message) int {
	return e.Text(m.Content) + MessageOverhead
}

// Messages estimates the cost of sending msgs as one request.
func (e Estimator) Messages(msgs []provider.Message) int {
	if len(msgs) == 0 {
		return 0
	}
	total := ReplyPriming
	for _, m := range msgs {
		total += e.Message(m)
	}
	return total
}
