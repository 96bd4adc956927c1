package ocr

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Clean normalizes recognizer artifacts: compatibility forms (ligatures,
// full-width digits), dash and quote variants, invisible format runes and
// runs of blanks. Line breaks are kept.
func Clean(text string) string {
	if text == "" {
		return text
	}

	t := transform.Chain(
		norm.NFKC,
		runes.Remove(runes.In(unicode.Cf)),
		runes.Map(foldPunct),
	)
	out, _, err := transform.String(t, text)
	if err != nil {
		out = text
	}

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.Join(lines, "\n")
}

func foldPunct(r rune) rune {
	switch r {
	case '\u2010', '\u2011', '\u2012', '\u2013', '\u2014', '\u2015', '\u2212':
		return '-'
	case '\u2018', '\u2019', '\u201a':
		return '\''
	case '\u201c', '\u201d', '\u201e':
		return '"'
	case '\r', '\t':
		return ' '
	}
	return r
}
