// Package filter finds prohibited words in chat messages.
package filter

import (
	"bufio"
	"os"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Matcher holds an immutable, sorted set of lower-cased terms.
type Matcher struct {
	terms []string
}

// New builds a matcher from raw terms. Blank entries and duplicates are dropped.
func New(terms []string) *Matcher {
	seen := make(map[string]struct{}, len(terms))
	normalized := make([]string, 0, len(terms))
	for _, term := range terms {
		term = fold(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		normalized = append(normalized, term)
	}
	slices.Sort(normalized)
	return &Matcher{terms: normalized}
}

// Load reads one term per line from path.
func Load(path string) (*Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open word list")
	}
	defer f.Close()

	var terms []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		terms = append(terms, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read word list")
	}
	return New(terms), nil
}

// Len returns the number of distinct terms.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.terms)
}

// Flag reports the first term, in sorted order, that occurs in text as a
// whole word. Matching is case-insensitive.
func (m *Matcher) Flag(text string) (string, bool) {
	if m == nil || len(m.terms) == 0 || strings.TrimSpace(text) == "" {
		return "", false
	}
	haystack := fold(text)
	for _, term := range m.terms {
		if containsWord(haystack, term) {
			return term, true
		}
	}
	return "", false
}

// fold lower-cases s after NFC normalization. The caser is created per call
// because cases.Caser keeps internal state.
func fold(s string) string {
	return cases.Lower(language.Und).String(norm.NFC.String(s))
}

func containsWord(haystack, term string) bool {
	offset := 0
	for {
		idx := strings.Index(haystack[offset:], term)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(term)

		before, _ := utf8.DecodeLastRuneInString(haystack[:start])
		after, _ := utf8.DecodeRuneInString(haystack[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(haystack) || !isWordRune(after)) {
			return true
		}

		_, size := utf8.DecodeRuneInString(haystack[start:])
		offset = start + size
	}
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
