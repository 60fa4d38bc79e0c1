package quickentry

import (
	"strings"
	"unicode"

	"github.com/mesapos/api/internal/model"
)

// Status is the outcome of resolving one line.
type Status string

const (
	Matched   Status = "matched"
	Ambiguous Status = "ambiguous"
	Unmatched Status = "unmatched"
)

// Result is how a piece of text resolved against the catalog.
type Result struct {
	Status     Status          `json:"status"`
	Product    *model.Product  `json:"product,omitempty"`
	Candidates []model.Product `json:"candidates,omitempty"`
}

// Resolution is a parsed line together with its match.
type Resolution struct {
	Line
	Result
}

const (
	// A product whose every name word was typed outranks partial hits.
	fullNameWeight = 5
	wordWeight     = 1
)

// Words that never identify a product on their own.
var stopWords = map[string]bool{
	"de": true, "del": true, "la": true, "el": true, "los": true, "las": true,
	"con": true, "sin": true, "y": true, "en": true, "al": true,
}

// Matcher scores typed text against product names.
type Matcher struct {
	products []model.Product
	words    [][]string // pre-tokenized names
}

// NewMatcher indexes products. Out-of-stock products are still matched so
// the caller can report them.
func NewMatcher(products []model.Product) *Matcher {
	m := &Matcher{
		products: products,
		words:    make([][]string, len(products)),
	}
	for i, p := range products {
		m.words[i] = keywords(p.Name)
	}
	return m
}

// Match resolves text to a single product when one scores strictly higher
// than every other.
func (m *Matcher) Match(text string) Result {
	input := keywords(text)
	if len(input) == 0 {
		return Result{Status: Unmatched}
	}
	typed := make(map[string]bool, len(input))
	for _, w := range input {
		typed[w] = true
	}

	best := 0
	var top []int
	for i, words := range m.words {
		if len(words) == 0 {
			continue
		}
		hits := 0
		for _, w := range words {
			if typed[w] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := hits * wordWeight
		if hits == len(words) {
			score += fullNameWeight
			// An exact name beats any superset of it.
			if len(words) == len(input) {
				score += fullNameWeight
			}
		}

		switch {
		case score > best:
			best = score
			top = []int{i}
		case score == best:
			top = append(top, i)
		}
	}

	switch len(top) {
	case 0:
		return Result{Status: Unmatched}
	case 1:
		p := m.products[top[0]]
		return Result{Status: Matched, Product: &p}
	}
	candidates := make([]model.Product, len(top))
	for i, idx := range top {
		candidates[i] = m.products[idx]
	}
	return Result{Status: Ambiguous, Candidates: candidates}
}

// Resolve parses text and matches every line.
func (m *Matcher) Resolve(text string) ([]Resolution, []string) {
	lines, warnings := ParseLines(text)
	out := make([]Resolution, 0, len(lines))
	for _, l := range lines {
		out = append(out, Resolution{Line: l, Result: m.Match(l.Text)})
	}
	return out, warnings
}

// keywords normalizes s into comparable words: lowercase, accents folded,
// punctuation dropped, stop words removed, plurals reduced.
func keywords(s string) []string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		r = fold(unicode.ToLower(r))
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}

	var out []string
	for _, w := range strings.Fields(sb.String()) {
		if stopWords[w] {
			continue
		}
		out = append(out, singular(w))
	}
	return out
}

func fold(r rune) rune {
	switch r {
	case 'á', 'à', 'ä', 'â':
		return 'a'
	case 'é', 'è', 'ë', 'ê':
		return 'e'
	case 'í', 'ì', 'ï', 'î':
		return 'i'
	case 'ó', 'ò', 'ö', 'ô':
		return 'o'
	case 'ú', 'ù', 'ü', 'û':
		return 'u'
	case 'ñ':
		return 'n'
	}
	return r
}

// singular reduces a word to a stem shared by its singular and plural:
// "limonadas" and "limonada" give "limonada", "flanes" and "flan" give
// "flan". Both sides of a comparison go through it, so the stem only needs
// to be consistent, not grammatical.
func singular(w string) string {
	if len(w) <= 3 {
		return w
	}
	w = strings.TrimSuffix(w, "s")
	if n := len(w); n > 3 && w[n-1] == 'e' {
		switch w[n-2] {
		case 'l', 'n', 'd', 'z', 'j':
			return w[:n-1]
		}
	}
	return w
}
