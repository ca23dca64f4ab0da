package resolver

import (
	"strings"
	"unicode"
)

const (
	maxPostKeywords  = 5
	minKeywordLength = 3
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		the and for are but not you all any can had her was one our out has have him his how its
		may new now old see two way who did get got let put say she too use that this with from
		they will just what when where which while been were than then them there these those
		into over only also some such very about after again before being below between both
		down during each few more most other same should under until your yours here why because
		could would their does doing off once own again ever every much many via per amp
		today tomorrow yesterday really still going gonna wanna like know think make made
		http https www com`) {
		stopWords[w] = struct{}{}
	}
}

// Tokenize lower-cases text and splits it on anything that is not a letter
// or digit. Stop words, short tokens and bare numbers are dropped.
func Tokenize(text string) []string {
	return tokenize(text, true)
}

// tokenize splits text into lower-cased tokens without stop words. Entity
// names keep short and numeric tokens ("AI", "L2", "2024") since they are
// often the whole name.
func tokenize(text string, keywordsOnly bool) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if keywordsOnly && (len([]rune(f)) < minKeywordLength || isNumber(f)) {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// ExtractKeywords returns up to limit distinct tokens in order of appearance.
func ExtractKeywords(text string, limit int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range Tokenize(text) {
		if len(out) == limit {
			break
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func tokenSet(text string) map[string]struct{} {
	return setOf(tokenize(text, true))
}

func nameTokenSet(name string) map[string]struct{} {
	return setOf(tokenize(name, false))
}

func setOf(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

// overlapRatio is the share of ref tokens also present in other; zero when
// ref is empty.
func overlapRatio(ref, other map[string]struct{}) float64 {
	if len(ref) == 0 {
		return 0
	}
	hits := 0
	for tok := range ref {
		if _, ok := other[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(ref))
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
