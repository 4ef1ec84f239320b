package fallback

import (
	"strings"
	"unicode"
)

// Answer is the classification of a reply to a search offer.
type Answer int

// Answer values.
const (
	Unrecognized Answer = iota
	Affirmative
	Negative
)

func (a Answer) String() string {
	switch a {
	case Affirmative:
		return "affirmative"
	case Negative:
		return "negative"
	default:
		return "unrecognized"
	}
}

var (
	yesPhrases = []string{
		"да", "ага", "угу", "конечно", "давай", "давайте", "ищи", "поищи", "найди",
		"хочу", "можно", "ок", "окей", "хорошо",
		"yes", "yeah", "yep", "yup", "sure", "ok", "okay", "please", "go ahead", "of course",
	}
	noPhrases = []string{
		"нет", "неа", "не надо", "не нужно", "не ищи", "не хочу", "не стоит",
		"не буду", "не интересно", "отмена", "отстань", "откажусь",
		"no", "nope", "nah", "don't", "dont", "no thanks", "no way", "cancel",
	}
	// a deferral declines even next to a yes: "да, но не сейчас"
	laterPhrases = []string{
		"не сейчас", "позже", "потом", "в другой раз", "как-нибудь потом",
		"later", "not now", "another time",
	}

	defaultVocabulary = NewVocabulary(yesPhrases, noPhrases).WithDeferrals(laterPhrases)
)

// Vocabulary classifies replies by phrase lists. Matching is case-insensitive
// and works on whole words, so "нет" inside "планета" does not count and
// "не хочу" is negative even though "хочу" alone is affirmative. Stretched
// words match their plain form: "дааа", "yesss", "нееет".
type Vocabulary struct {
	yes   [][]string
	no    [][]string
	later [][]string
}

// NewVocabulary builds a vocabulary from affirmative and negative phrases.
func NewVocabulary(yes, no []string) *Vocabulary {
	v := &Vocabulary{}
	for _, p := range yes {
		if w := words(p); len(w) > 0 {
			v.yes = append(v.yes, w)
		}
	}
	for _, p := range no {
		if w := words(p); len(w) > 0 {
			v.no = append(v.no, w)
		}
	}
	return v
}

// WithDeferrals adds phrases that postpone the search. Any of them makes the
// reply Negative regardless of other words.
func (v *Vocabulary) WithDeferrals(later []string) *Vocabulary {
	for _, p := range later {
		if w := words(p); len(w) > 0 {
			v.later = append(v.later, w)
		}
	}
	return v
}

// Classify classifies text with the built-in Russian and English vocabulary.
func Classify(text string) Answer {
	return defaultVocabulary.Classify(text)
}

// Classify returns Affirmative or Negative when exactly one of the phrase
// sets matches, and Unrecognized when both or neither do.
func (v *Vocabulary) Classify(text string) Answer {
	ws := words(text)
	if len(ws) == 0 {
		return Unrecognized
	}

	used := make([]bool, len(ws))
	for _, p := range v.later {
		if claim(ws, used, p) {
			return Negative
		}
	}

	// negative phrases claim their words first
	no := false
	for _, p := range v.no {
		if claim(ws, used, p) {
			no = true
		}
	}
	yes := false
	for _, p := range v.yes {
		if claim(ws, used, p) {
			yes = true
		}
	}

	switch {
	case yes && !no:
		return Affirmative
	case no && !yes:
		return Negative
	default:
		return Unrecognized
	}
}

// claim marks every unclaimed occurrence of phrase in ws.
func claim(ws []string, used []bool, phrase []string) bool {
	found := false
	for i := 0; i+len(phrase) <= len(ws); i++ {
		match := true
		for j, p := range phrase {
			if used[i+j] || !sameWord(ws[i+j], p) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		for j := range phrase {
			used[i+j] = true
		}
		found = true
	}
	return found
}

func sameWord(w, p string) bool {
	return w == p || squeeze(w) == p
}

// squeeze collapses runs of a repeated letter: "дааа" becomes "да".
func squeeze(w string) string {
	var b strings.Builder
	var prev rune
	for i, r := range w {
		if i > 0 && r == prev {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

func words(s string) []string {
	s = strings.ReplaceAll(strings.ToLower(s), "ё", "е")
	s = strings.ReplaceAll(s, "’", "'")
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
