package assistant

import (
	"regexp"
	"strings"
	"unicode"
)

// allowed reports whether the sender may use the assistant.
func (a *Assistant) allowed(in Inbound) bool {
	if len(a.cfg.AllowUsers) == 0 {
		return true
	}
	for _, u := range a.cfg.AllowUsers {
		if u == in.UserID || u == in.ConversationID {
			return true
		}
	}
	return false
}

// addressed returns the text meant for the assistant. In group chats only
// messages that mention a trigger word count; a leading trigger is removed.
func (a *Assistant) addressed(in Inbound) (string, bool) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return "", false
	}
	if in.Private || strings.HasPrefix(text, "/") {
		return text, true
	}

	lower := strings.ToLower(text)
	triggered := false
	for _, t := range a.cfg.Triggers {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			triggered = true
			break
		}
	}
	if !triggered {
		return "", false
	}

	text = stripTrigger(text, a.cfg.Triggers)
	if text == "" {
		text = greeting(a.cfg.Name)
	}
	return text, true
}

var triggerTail = regexp.MustCompile(`^[\s,:;!?-]*`)

// stripTrigger removes the first trigger found at the start of text,
// together with the punctuation that follows it.
func stripTrigger(text string, triggers []string) string {
	lower := strings.ToLower(text)
	best := ""
	for _, t := range triggers {
		t = strings.ToLower(t)
		if t != "" && strings.HasPrefix(lower, t) && len(t) > len(best) {
			best = t
		}
	}
	if best == "" {
		return text
	}
	rest := text[len(best):]
	// only whole words: "душнилла" must not eat the start of "душнилладом"
	if r := []rune(rest); len(r) > 0 && (unicode.IsLetter(r[0]) || unicode.IsDigit(r[0])) {
		return text
	}
	rest = triggerTail.ReplaceAllString(rest, "")
	return strings.TrimSpace(rest)
}

var sourceRequest = regexp.MustCompile(`(?i)(пришли|отправь|скинь|покажи|дай)\s+(мне\s+)?(этот\s+|тот\s+)?(документ|источник|файл|pdf)|send\s+(me\s+)?the\s+(source|document|file)`)

// wantsSource reports whether text asks for the source document in plain words.
func wantsSource(text string) bool {
	return sourceRequest.MatchString(text)
}
