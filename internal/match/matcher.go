package match

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	re2 "github.com/wasilibs/go-re2"
)

// ErrInvalidTotal is returned when the batch denominator is not positive.
var ErrInvalidTotal = errors.New("total keywords must be positive")

// Stats is what a scan learns about one document.
type Stats struct {
	MatchCount        int
	MatchedKeywords   []string // subsequence of the keywords, same order
	Percentage        float64  // 100 * MatchCount / totalKeywords, 2 decimals
	PresentVocabulary []string // subsequence of the vocabulary, declaration order
}

// KeywordSet is a batch's keywords compiled once. Every task of the batch shares
// it, and it goes away with the batch's tasks.
type KeywordSet struct {
	keywords []string
	patterns []*re2.Regexp
}

// CompileKeywords builds case-insensitive whole-word patterns with flexible inner
// whitespace, keeping keyword order.
func CompileKeywords(keywords []string) (*KeywordSet, error) {
	ks := &KeywordSet{
		keywords: make([]string, 0, len(keywords)),
		patterns: make([]*re2.Regexp, 0, len(keywords)),
	}
	for _, k := range keywords {
		re, err := compileTerm(k, true)
		if err != nil {
			return nil, fmt.Errorf("keyword %q: %w", k, err)
		}
		ks.keywords = append(ks.keywords, k)
		ks.patterns = append(ks.patterns, re)
	}
	return ks, nil
}

// Keywords returns the keywords in submission order.
func (ks *KeywordSet) Keywords() []string { return ks.keywords }

// Len is the number of compiled keywords.
func (ks *KeywordSet) Len() int { return len(ks.keywords) }

// Matcher scans text for a batch's keywords and the fixed vocabulary. It holds no
// per-batch state.
type Matcher struct {
	vocab  *Vocabulary
	logger *slog.Logger
}

func NewMatcher(vocab *Vocabulary, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{vocab: vocab, logger: logger}
}

// Vocabulary exposes the injected term list.
func (m *Matcher) Vocabulary() *Vocabulary { return m.vocab }

// Match reports which keywords of ks occur in text. totalKeywords is the
// batch-level denominator and is not recomputed from ks.
func (m *Matcher) Match(text string, ks *KeywordSet, totalKeywords int) (Stats, error) {
	if totalKeywords <= 0 {
		return Stats{}, fmt.Errorf("%w: got %d", ErrInvalidTotal, totalKeywords)
	}

	st := Stats{MatchedKeywords: []string{}, PresentVocabulary: []string{}}
	if ks != nil {
		for i, re := range ks.patterns {
			if re.MatchString(text) {
				st.MatchCount++
				st.MatchedKeywords = append(st.MatchedKeywords, ks.keywords[i])
			}
		}
	}
	st.Percentage = Percentage(st.MatchCount, totalKeywords)
	if m.vocab != nil {
		st.PresentVocabulary = m.vocab.Present(text)
	}
	return st, nil
}

// Percentage rounds 100*count/total to two decimal places, ties to even.
func Percentage(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	return roundHalfEven(float64(count)/float64(total)*100, 2)
}

// roundHalfEven rounds the exact decimal value of x, so 3.125 is a tie and
// becomes 3.12, while 0.285 (stored as 0.28499...) becomes 0.28.
func roundHalfEven(x float64, places int) float64 {
	d, _ := strconv.ParseFloat(strconv.FormatFloat(x, 'f', places, 64), 64)
	return d
}
