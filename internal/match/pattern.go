package match

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	re2 "github.com/wasilibs/go-re2"
)

var errBlankTerm = errors.New("blank term")

// compileTerm builds a case-insensitive whole-word pattern for term. When
// flexibleSpace is set, every run of whitespace inside term matches one or more
// whitespace characters in the text.
//
// Edges that are word characters use \b. Edges like the "#" in "C#" have no \b
// on their outer side, so they require a non-word character or the text edge.
func compileTerm(term string, flexibleSpace bool) (*re2.Regexp, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errBlankTerm
	}

	var body string
	if flexibleSpace {
		parts := strings.Fields(term)
		for i, p := range parts {
			parts[i] = regexp.QuoteMeta(p)
		}
		body = strings.Join(parts, `\s+`)
	} else {
		body = regexp.QuoteMeta(term)
	}

	runes := []rune(term)
	var b strings.Builder
	b.WriteString(`(?i)`)
	if isWordRune(runes[0]) {
		b.WriteString(`\b`)
	} else {
		b.WriteString(`(?:^|[^\w])`)
	}
	b.WriteString(body)
	if isWordRune(runes[len(runes)-1]) {
		b.WriteString(`\b`)
	} else {
		b.WriteString(`(?:[^\w]|$)`)
	}
	return re2.Compile(b.String())
}

// isWordRune mirrors the ASCII \w class used by \b.
func isWordRune(r rune) bool {
	return r == '_' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)))
}
