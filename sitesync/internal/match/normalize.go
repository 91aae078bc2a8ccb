package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize folds s for comparison: NFC, lower case, every rune that is
// not a letter or digit becomes a space, whitespace collapsed.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// stopwords are dropped before token comparison. English and Norwegian
// (bokmål and nynorsk) function words common in FAQ questions.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"what": true, "when": true, "where": true, "how": true, "which": true,
	"do": true, "does": true, "can": true, "i": true, "you": true, "we": true,
	"our": true, "your": true, "of": true, "to": true, "for": true, "in": true,
	"on": true, "at": true, "and": true, "or": true, "it": true, "be": true,
	"with": true, "my": true, "me": true, "this": true, "that": true,

	"hva": true, "kva": true, "er": true, "det": true, "den": true, "de": true,
	"en": true, "et": true, "ei": true, "og": true, "på": true, "til": true,
	"av": true, "med": true, "som": true, "hvor": true, "kor": true, "når": true,
	"hvordan": true, "korleis": true, "kan": true, "jeg": true, "eg": true,
	"du": true, "vi": true, "dere": true, "har": true, "om": true, "å": true,
	"hvilke": true, "hvilken": true, "min": true, "mitt": true, "din": true,
	"ditt": true, "deres": true, "vår": true, "våre": true, "dykk": true,
}

// tokens splits normalized text into comparison tokens. Stopwords are
// removed unless that would leave nothing.
func tokens(normalized string) []string {
	all := strings.Fields(normalized)
	kept := make([]string, 0, len(all))
	for _, t := range all {
		if !stopwords[t] {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return all
	}
	return kept
}
