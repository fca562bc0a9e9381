// Package vocab corrects recognizer output against a user-maintained
// vocabulary of names and jargon.
//
// Speech models reliably mangle proper nouns ("eldrinax" comes out as "elder
// nacks"). The corrector runs each transcript word through two stages:
// Double Metaphone codes filter phonetic candidates, then Jaro-Winkler
// similarity ranks them. A word is only replaced when it clears the phonetic
// threshold, or the stricter fuzzy threshold when no phonetic candidate
// exists, so ordinary words pass through untouched.
//
// The same vocabulary doubles as the recognizer's hotword list for model
// families that support decode-time biasing.
package vocab

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	// minWordLen guards short function words ("a", "to", "is") from ever
	// being rewritten.
	minWordLen = 3
)

// Option is a functional option for [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) { c.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate exists and the corrector falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) { c.fuzzyThreshold = threshold }
}

// term is a vocabulary entry with its precomputed phonetic codes.
type term struct {
	text  string
	lower string
	codes map[string]struct{}
}

// Corrector rewrites transcript words to vocabulary terms. Read-only after
// construction and safe for concurrent use.
type Corrector struct {
	terms             []term
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New builds a corrector over the given vocabulary terms. Blank terms are
// dropped; phonetic codes are precomputed once.
func New(terms []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		lower := strings.ToLower(t)
		c.terms = append(c.terms, term{
			text:  t,
			lower: lower,
			codes: metaphoneCodes(lower),
		})
	}
	return c
}

// LoadFile reads a vocabulary file, one term per line. Blank lines and lines
// starting with '#' are skipped. A missing file yields an empty corrector.
func LoadFile(path string, opts ...Option) (*Corrector, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(nil, opts...), nil
		}
		return nil, fmt.Errorf("vocab: open %s: %w", path, err)
	}
	defer f.Close()

	var terms []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("vocab: read %s: %w", path, err)
	}
	return New(terms, opts...), nil
}

// Terms returns the vocabulary in load order.
func (c *Corrector) Terms() []string {
	out := make([]string, len(c.terms))
	for i, t := range c.terms {
		out[i] = t.text
	}
	return out
}

// WriteHotwords writes the vocabulary as a recognizer hotword file, one term
// per line. No file is written when the vocabulary is empty.
func (c *Corrector) WriteHotwords(path string) error {
	if len(c.terms) == 0 {
		return nil
	}
	var b strings.Builder
	for _, t := range c.terms {
		b.WriteString(t.text)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("vocab: write hotwords: %w", err)
	}
	return nil
}

// Apply implements the session layer's corrector contract: each word of text
// is matched against the vocabulary and replaced when it clears a threshold.
// Punctuation around words is preserved.
func (c *Corrector) Apply(text string) string {
	if len(c.terms) == 0 || text == "" {
		return text
	}

	fields := strings.Fields(text)
	changed := false
	for i, f := range fields {
		prefix, core, suffix := splitPunct(f)
		if len(core) < minWordLen {
			continue
		}
		if repl, ok := c.match(core); ok {
			fields[i] = prefix + repl + suffix
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(fields, " ")
}

// match finds the best vocabulary term for word, or reports ok=false when
// nothing clears a threshold.
func (c *Corrector) match(word string) (string, bool) {
	lower := strings.ToLower(word)
	wordCodes := metaphoneCodes(lower)

	var (
		bestTerm     string
		bestScore    float64
		bestPhonetic bool
	)
	for _, t := range c.terms {
		if lower == t.lower {
			// Already correct; do not touch it.
			return "", false
		}

		score := matchr.JaroWinkler(lower, t.lower, false)
		phonetic := codesOverlap(wordCodes, t.codes)

		if phonetic {
			if score >= c.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				bestTerm, bestScore, bestPhonetic = t.text, score, true
			}
		} else if !bestPhonetic {
			if score >= c.fuzzyThreshold && score > bestScore {
				bestTerm, bestScore = t.text, score
			}
		}
	}
	return bestTerm, bestTerm != ""
}

// metaphoneCodes returns the set of Double Metaphone codes for a word,
// excluding empty codes.
func metaphoneCodes(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// splitPunct separates leading and trailing punctuation from the word core.
func splitPunct(s string) (prefix, core, suffix string) {
	runes := []rune(s)
	start, end := 0, len(runes)
	for start < end && !unicode.IsLetter(runes[start]) && !unicode.IsDigit(runes[start]) {
		start++
	}
	for end > start && !unicode.IsLetter(runes[end-1]) && !unicode.IsDigit(runes[end-1]) {
		end--
	}
	return string(runes[:start]), string(runes[start:end]), string(runes[end:])
}
