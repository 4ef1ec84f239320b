package knowledge

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// BM25Config holds the BM25 parameters.
type BM25Config struct {
	K1 float64 // Term frequency saturation, default 1.2
	B  float64 // Length normalization, default 0.75
}

type bm25Doc struct {
	hit    Hit
	terms  map[string]int
	docLen int
}

// bm25Corpus is an immutable scored snapshot of the indexed chunks.
type bm25Corpus struct {
	k1        float64
	b         float64
	docs      []bm25Doc
	avgDocLen float64
}

func newBM25Corpus(cfg BM25Config, hits []Hit) *bm25Corpus {
	if cfg.K1 == 0 {
		cfg.K1 = 1.2
	}
	if cfg.B == 0 {
		cfg.B = 0.75
	}

	c := &bm25Corpus{k1: cfg.K1, b: cfg.B, docs: make([]bm25Doc, 0, len(hits))}
	total := 0
	for _, h := range hits {
		words := terms(h.Section + " " + h.Text)
		tf := make(map[string]int, len(words))
		for _, w := range words {
			tf[w]++
		}
		c.docs = append(c.docs, bm25Doc{hit: h, terms: tf, docLen: len(words)})
		total += len(words)
	}
	if len(c.docs) > 0 {
		c.avgDocLen = float64(total) / float64(len(c.docs))
	}
	return c
}

// freq counts the words of d that match term.
func (d *bm25Doc) freq(term string) int {
	if !inflectable(term) {
		return d.terms[term]
	}
	n := 0
	for w, c := range d.terms {
		if sameStem(term, w) {
			n += c
		}
	}
	return n
}

// score returns the topK documents with a positive score, best first.
func (c *bm25Corpus) score(query string, topK int) []Hit {
	if len(c.docs) == 0 || topK <= 0 || c.avgDocLen == 0 {
		return nil
	}
	qterms := tokenize(query)
	if len(qterms) == 0 {
		return nil
	}

	tfs := make([][]int, len(c.docs))
	df := make([]int, len(qterms))
	for i := range c.docs {
		tfs[i] = make([]int, len(qterms))
		for j, t := range qterms {
			if tf := c.docs[i].freq(t); tf > 0 {
				tfs[i][j] = tf
				df[j]++
			}
		}
	}

	n := float64(len(c.docs))
	var results []Hit
	for i, d := range c.docs {
		s := 0.0
		for j := range qterms {
			tf := float64(tfs[i][j])
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[j])+0.5)/(float64(df[j])+0.5))
			tfNorm := (tf * (c.k1 + 1)) /
				(tf + c.k1*(1-c.b+c.b*float64(d.docLen)/c.avgDocLen))
			s += idf * tfNorm
		}
		if s > 0 {
			h := d.hit
			h.Score = s
			results = append(results, h)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// inflectable reports whether a word is long enough to match other forms
// of itself ("корм", "корма", "кормов").
func inflectable(w string) bool {
	return utf8.RuneCountInString(w) >= 4
}

// sameStem matches whole words, allowing a short differing ending once both
// are long enough: "часы"/"часов", "магазин"/"магазина", "hour"/"hours".
func sameStem(a, b string) bool {
	if a == b {
		return true
	}
	if !inflectable(a) || !inflectable(b) {
		return false
	}
	ra, rb := []rune(a), []rune(b)
	shorter := min(len(ra), len(rb))
	need := max(3, shorter-2)
	if shorter <= 4 {
		need = shorter - 1
	}
	common := 0
	for common < shorter && ra[common] == rb[common] {
		common++
	}
	return common >= need
}

// minTermRunes drops short function words such as "и", "не", "по".
const minTermRunes = 3

// stopwords are frequent words that say nothing about the topic.
var stopwords = map[string]bool{
	// ru
	"что": true, "это": true, "как": true, "для": true, "где": true, "когда": true,
	"или": true, "так": true, "уже": true, "вот": true, "мне": true, "вас": true,
	"нас": true, "вам": true, "нам": true, "они": true, "она": true, "оно": true,
	"его": true, "её": true, "ему": true, "все": true, "всё": true, "ещё": true,
	"еще": true, "тоже": true, "есть": true, "был": true, "была": true, "были": true,
	"будет": true, "чтобы": true, "если": true, "только": true, "можно": true,
	"нужно": true, "какой": true, "какая": true, "какие": true, "каких": true,
	"который": true, "которая": true, "которые": true, "меня": true, "тебя": true,
	"себя": true, "про": true, "при": true, "над": true, "под": true, "без": true,
	"после": true, "через": true, "также": true, "очень": true, "такое": true,
	"такой": true, "эта": true, "этот": true, "эти": true, "там": true, "тут": true,
	"здесь": true, "пожалуйста": true, "подскажите": true, "скажите": true,
	"знаете": true, "зачем": true, "почему": true, "сколько": true, "чем": true,
	"кто": true, "чего": true, "вы": true, "ваш": true, "ваши": true, "наш": true,
	// en
	"the": true, "and": true, "are": true, "for": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "how": true, "why": true, "you": true,
	"your": true, "our": true, "with": true, "this": true, "that": true, "these": true,
	"those": true, "there": true, "from": true, "have": true, "has": true, "was": true,
	"were": true, "will": true, "can": true, "could": true, "would": true,
	"should": true, "does": true, "did": true, "not": true, "but": true, "any": true,
	"all": true, "about": true, "into": true, "than": true, "then": true, "them": true,
	"they": true, "its": true, "his": true, "her": true, "she": true, "him": true,
	"more": true, "some": true, "such": true, "only": true, "also": true,
	"just": true, "please": true, "tell": true,
}

// terms lowercases text and splits it on anything that is not a letter or
// digit, dropping stopwords and very short words. Repeats are kept.
func terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTermRunes || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// tokenize returns the distinct terms of a query.
func tokenize(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range terms(text) {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
