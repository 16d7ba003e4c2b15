package match

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	re2 "github.com/wasilibs/go-re2"
	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabularyYAML []byte

// Vocabulary is the fixed list of technology names checked in every document.
// It is immutable once built and safe to share between workers.
type Vocabulary struct {
	terms    []string
	patterns []*re2.Regexp
}

type vocabularyFile struct {
	Terms []string `yaml:"terms"`
}

// DefaultVocabulary returns the built-in technology list.
func DefaultVocabulary() (*Vocabulary, error) {
	return ParseVocabulary(defaultVocabularyYAML)
}

// LoadVocabulary reads a YAML file of the form `terms: [...]`. An empty path
// yields the built-in list.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return ParseVocabulary(data)
}

func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var f vocabularyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	return NewVocabulary(f.Terms)
}

// NewVocabulary keeps declaration order and drops blank and case-insensitive
// duplicate entries.
func NewVocabulary(terms []string) (*Vocabulary, error) {
	v := &Vocabulary{}
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		re, err := compileTerm(t, false)
		if err != nil {
			return nil, fmt.Errorf("vocabulary term %q: %w", t, err)
		}
		v.terms = append(v.terms, t)
		v.patterns = append(v.patterns, re)
	}
	if len(v.terms) == 0 {
		return nil, fmt.Errorf("vocabulary is empty")
	}
	return v, nil
}

// Terms returns a copy of the vocabulary in declaration order.
func (v *Vocabulary) Terms() []string {
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

func (v *Vocabulary) Len() int { return len(v.terms) }

// Present returns the terms found in text, in declaration order.
func (v *Vocabulary) Present(text string) []string {
	out := []string{}
	for i, re := range v.patterns {
		if re.MatchString(text) {
			out = append(out, v.terms[i])
		}
	}
	return out
}
