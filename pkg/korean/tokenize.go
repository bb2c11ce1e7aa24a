// Package korean provides the text processing used by the retrieval
// engine: keyword tokenization for the sparse index and query/document
// rewriting tuned for Korean sustainability reports.
package korean

import "strings"

// Particles that carry no lexical weight on their own.
var stopwords = map[string]struct{}{
	"은": {}, "는": {}, "이": {}, "가": {},
	"을": {}, "를": {}, "의": {}, "에": {},
	"에서": {}, "로": {}, "으로": {}, "와": {}, "과": {},
}

// Tokenize lowercases text and extracts keyword tokens: runs of Hangul
// syllables, runs of Latin letters, and numbers with an optional decimal
// part and an optional trailing percent sign. Korean particle stopwords
// are dropped. Everything else (punctuation, whitespace, other scripts)
// separates tokens. Tokenizing the joined output again yields the same
// tokens.
func Tokenize(text string) []string {
	runes := []rune(strings.ToLower(text))

	var tokens []string
	for i := 0; i < len(runes); {
		var j int
		switch r := runes[i]; {
		case isHangul(r):
			j = i + 1
			for j < len(runes) && isHangul(runes[j]) {
				j++
			}
		case isLatin(r):
			j = i + 1
			for j < len(runes) && isLatin(runes[j]) {
				j++
			}
		case isDigit(r):
			j = i + 1
			for j < len(runes) && isDigit(runes[j]) {
				j++
			}
			// A dot only belongs to the token when digits follow it, so
			// "95.7" stays whole but a sentence-final "7." does not.
			if j+1 < len(runes) && runes[j] == '.' && isDigit(runes[j+1]) {
				j += 2
				for j < len(runes) && isDigit(runes[j]) {
					j++
				}
			}
			if j < len(runes) && runes[j] == '%' {
				j++
			}
		default:
			i++
			continue
		}

		tok := string(runes[i:j])
		if _, stop := stopwords[tok]; !stop {
			tokens = append(tokens, tok)
		}
		i = j
	}

	return tokens
}

func isHangul(r rune) bool { return r >= '가' && r <= '힣' }
func isLatin(r rune) bool  { return r >= 'a' && r <= 'z' }
func isDigit(r rune) bool  { return r >= '0' && r <= '9' }
