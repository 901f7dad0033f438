package repositorycache

import (
	"strings"
	"unicode"
)

// toSnake turns a Go type name into a snake_case namespace segment.
// Anything that is not a letter or digit (pointer stars, package dots,
// generic brackets) only separates words.
func toSnake(s string) string {
	runes := []rune(s)
	words := make([]string, 0, 4)
	var word []rune

	flush := func() {
		if len(word) > 0 {
			words = append(words, strings.ToLower(string(word)))
			word = word[:0]
		}
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if n := len(word); n > 0 {
			prev := word[n-1]
			acronymEnd := unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
			switch {
			case unicode.IsDigit(r) && !unicode.IsDigit(prev):
				flush()
			case unicode.IsUpper(r) && (!unicode.IsUpper(prev) || acronymEnd):
				flush()
			}
		}
		word = append(word, r)
	}
	flush()

	return strings.Join(words, "_")
}
