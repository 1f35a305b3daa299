// Package normalize turns free-text BOQ descriptions into comparable token
// sets: lower-cased, punctuation-stripped, stemmed, with units, measurements
// and construction abbreviations pulled out.
package normalize

import (
	"sort"
	"strings"
	"unicode"

	"github.com/surgebase/porter2"
)

// Text is the normalized form of a description. It is safe to share between
// goroutines once built.
type Text struct {
	Canonical    string
	Unit         string
	Tokens       []string
	Stems        []string
	Synonyms     []string
	Measurements []string
}

// Empty reports whether no meaningful tokens survived normalization.
func (t Text) Empty() bool {
	return len(t.Tokens) == 0
}

// StemSet returns the stems as a set.
func (t Text) StemSet() map[string]struct{} {
	set := make(map[string]struct{}, len(t.Stems))
	for _, s := range t.Stems {
		set[s] = struct{}{}
	}
	return set
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "in": {}, "into": {}, "including": {}, "is": {}, "it": {},
	"of": {}, "on": {}, "or": {}, "per": {}, "the": {}, "to": {}, "with": {}, "all": {},
	"etc": {}, "any": {}, "other": {}, "complete": {},
}

// IsStopWord reports whether w is dropped during normalization.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

// Normalize builds the normalized form of text. It is deterministic and
// idempotent on Canonical.
func Normalize(text string) Text {
	lowered := fold(text)
	out := Text{
		Unit:         ExtractUnit(lowered),
		Measurements: ExtractMeasurements(lowered),
	}

	for _, tok := range strings.Fields(stripPunctuation(lowered)) {
		if IsStopWord(tok) {
			continue
		}
		out.Tokens = append(out.Tokens, tok)
		out.Stems = append(out.Stems, Stem(tok))
	}
	out.Canonical = strings.Join(out.Tokens, " ")
	out.Synonyms = Expand(out.Tokens)
	return out
}

// Canonical is shorthand for Normalize(text).Canonical.
func Canonical(text string) string {
	return Normalize(text).Canonical
}

// Headers normalizes context headers to canonical strings, dropping empties,
// and returns them sorted.
func Headers(headers []string) []string {
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		if c := Canonical(h); c != "" {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Stem reduces a token to its porter2 stem. Tokens containing digits are left
// as they are.
func Stem(tok string) string {
	for _, r := range tok {
		if unicode.IsDigit(r) {
			return tok
		}
	}
	return porter2.Stem(tok)
}

// fold lower-cases text and replaces typographic variants with ASCII forms.
func fold(text string) string {
	r := strings.NewReplacer(
		"²", "2", "³", "3", "×", "x", "–", "-", "—", "-", "’", "'",
	)
	return strings.ToLower(r.Replace(text))
}

// stripPunctuation replaces everything but letters and digits with spaces.
// Decimal points and ratio colons between digits survive.
func stripPunctuation(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case (r == '.' || r == ':') && i > 0 && i+1 < len(runes) &&
			unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}
