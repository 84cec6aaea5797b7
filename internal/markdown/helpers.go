package markdown

import "strings"

// Taken from https://core.telegram.org/bots/api#markdownv2-style.
const (
	mdV2SpecialChars    = `._[](){}#|!+-=*~>` + "`"
	mdV2URLSpecialChars = `)\`
)

var (
	textLookup = lookupTable(mdV2SpecialChars)
	urlLookup  = lookupTable(mdV2URLSpecialChars)
)

// EscapeV2 escapes text for Telegram's MarkdownV2 parse mode.
func EscapeV2(input string) string {
	return escape(input, &textLookup)
}

// EscapeV2URL escapes the target of an inline link, where only ')' and '\'
// are special.
func EscapeV2URL(input string) string {
	return escape(input, &urlLookup)
}

// Bold wraps already escaped text.
func Bold(escaped string) string {
	return "*" + escaped + "*"
}

// Link renders an inline link from raw title and URL.
func Link(title, url string) string {
	return "[" + EscapeV2(title) + "](" + EscapeV2URL(url) + ")"
}

func escape(input string, lookup *[256]bool) string {
	charsToEscape := 0
	for i := range input {
		if lookup[input[i]] {
			charsToEscape++
		}
	}
	if charsToEscape == 0 {
		return input
	}

	var b strings.Builder
	b.Grow(len(input) + charsToEscape)

	for i := range input {
		c := input[i]
		if lookup[c] {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}

	return b.String()
}

func lookupTable(chars string) [256]bool {
	var m [256]bool
	for _, c := range []byte(chars) {
		m[c] = true
	}
	return m
}
