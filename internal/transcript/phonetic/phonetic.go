// Package phonetic matches misheard words against a configured vocabulary
// using Double Metaphone phonetic encoding combined with Jaro-Winkler string
// similarity for ranked candidate selection.
//
// Matching proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each token of the input phrase and each vocabulary term. A term whose
//     code set overlaps the input's becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the term with the
//     highest similarity wins, provided its score clears the phonetic
//     threshold. Terms without phonetic overlap may still match on pure
//     string similarity above the stricter fuzzy threshold.
//
// Multi-word terms ("Prometheus Operator") and split mishearings ("post
// gress" for "Postgres") are handled by scoring both the full strings and
// their space-stripped concatenations. Guards keep candidate windows
// honest: a multi-token window must share a two-character onset with the
// term, a window with the term's word count must loosely align with it
// word by word, and a window with fewer words than the term must cover
// most of its length. Each rejects windows that merely contain or open a
// term next to unrelated text.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.92

	// minTokenAlignment is the per-word similarity floor for windows whose
	// word count equals the term's.
	minTokenAlignment = 0.55
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when a
// term has no phonetic overlap with the input, or when the input and term
// differ in word count. The Jaro-Winkler prefix bonus lets a word that
// merely opens like a term ("post" against "Postgres") reach 0.90, so this
// bar sits well above it. Default: 0.92.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher ranks vocabulary terms by pronunciation similarity. It is
// read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Vocabulary holds precomputed matching data for a list of terms. Compile
// once per transcript and reuse it for every candidate window.
type Vocabulary struct {
	terms    []term
	maxWords int
}

type term struct {
	// canonical is the term as configured, with whitespace normalised.
	canonical string
	lower     string
	tokens    []string
	codes     map[string]struct{}
}

// Compile precomputes phonetic codes for the given terms. Blank entries are
// skipped; surrounding and repeated whitespace is normalised away.
func Compile(terms []string) *Vocabulary {
	v := &Vocabulary{}
	for _, raw := range terms {
		fields := strings.Fields(raw)
		if len(fields) == 0 {
			continue
		}
		canonical := strings.Join(fields, " ")
		lower := strings.ToLower(canonical)
		tokens := strings.Fields(lower)
		v.terms = append(v.terms, term{
			canonical: canonical,
			lower:     lower,
			tokens:    tokens,
			codes:     codesForTokens(tokens),
		})
		if len(tokens) > v.maxWords {
			v.maxWords = len(tokens)
		}
	}
	return v
}

// MaxWords returns the word count of the longest term, 0 when empty.
func (v *Vocabulary) MaxWords() int {
	if v == nil {
		return 0
	}
	return v.maxWords
}

// Empty reports whether the vocabulary contains no usable terms.
func (v *Vocabulary) Empty() bool {
	return v == nil || len(v.terms) == 0
}

// Match finds the vocabulary term most phonetically similar to phrase.
// It is a convenience wrapper around [Compile] and [Matcher.MatchVocabulary];
// callers testing many windows against the same list should compile once.
func (m *Matcher) Match(phrase string, terms []string) (corrected string, confidence float64, matched bool) {
	return m.MatchVocabulary(phrase, Compile(terms))
}

// MatchVocabulary finds the term in v most phonetically similar to phrase.
//
// phrase may be a single word or a space-separated n-gram. When matched is
// true, corrected holds the canonical term and confidence its Jaro-Winkler
// score in [0, 1]. When matched is false, corrected equals phrase unchanged
// and confidence is 0. Phonetic candidates outrank fuzzy-only candidates
// regardless of score.
func (m *Matcher) MatchVocabulary(phrase string, v *Vocabulary) (corrected string, confidence float64, matched bool) {
	if v.Empty() || strings.TrimSpace(phrase) == "" {
		return phrase, 0, false
	}

	phraseLower := strings.ToLower(strings.TrimSpace(phrase))
	phraseTokens := strings.Fields(phraseLower)
	inputCodes := codesForTokens(phraseTokens)

	var best struct {
		term     string
		score    float64
		phonetic bool
	}

	for _, t := range v.terms {
		if len(phraseTokens) == len(t.tokens) && len(phraseTokens) > 1 && !tokensAlign(phraseTokens, t.tokens) {
			continue
		}
		score := similarity(phraseTokens, t.tokens, phraseLower, t.lower)
		if score == 0 {
			continue
		}

		if codesOverlap(inputCodes, t.codes) {
			threshold := m.phoneticThreshold
			// A window that splits or joins words has weaker phonetic
			// evidence and must clear the fuzzy bar instead.
			if len(phraseTokens) != len(t.tokens) {
				threshold = m.fuzzyThreshold
			}
			if score >= threshold && (!best.phonetic || score > best.score) {
				best.term, best.score, best.phonetic = t.canonical, score, true
			}
		} else if !best.phonetic && score >= m.fuzzyThreshold && score > best.score {
			best.term, best.score = t.canonical, score
		}
	}

	if best.term == "" {
		return phrase, 0, false
	}
	return best.term, best.score, true
}

// similarity returns the higher of two Jaro-Winkler scores: the full strings
// and their space-stripped concatenations. The concatenated form scores
// mishearings that split one word into several or merge several into one.
//
// Two windows are ruled out before scoring. A multi-token phrase must share
// a two-character onset with the term once concatenated: a term sitting
// inside an otherwise unrelated window ("deploy postgres" against
// "Postgres") scores high on raw similarity but is not a mishearing of the
// term. And a phrase with fewer words than the term must cover most of the
// term's length: expanding a lone "prometheus" into "Prometheus Operator"
// would fabricate a word the speaker never said.
func similarity(phraseTokens, termTokens []string, phraseLower, termLower string) float64 {
	concatPhrase := strings.Join(phraseTokens, "")
	concatTerm := strings.Join(termTokens, "")
	if len(phraseTokens) > 1 && commonPrefixLen(concatPhrase, concatTerm) < 2 {
		return 0
	}
	if len(phraseTokens) < len(termTokens) && 4*len(concatPhrase) < 3*len(concatTerm) {
		return 0
	}

	score := matchr.JaroWinkler(phraseLower, termLower, false)
	if len(phraseTokens) > 1 || len(termTokens) > 1 {
		if s := matchr.JaroWinkler(concatPhrase, concatTerm, false); s > score {
			score = s
		}
	}
	return score
}

// tokensAlign reports whether every phrase token bears at least a loose
// resemblance to the term token in the same position. It rejects windows
// that share one strong word with a multi-word term while the rest differ
// entirely ("prometheus summary" against "Prometheus Operator").
func tokensAlign(phraseTokens, termTokens []string) bool {
	for i := range phraseTokens {
		if matchr.JaroWinkler(phraseTokens[i], termTokens[i], false) < minTokenAlignment {
			return false
		}
	}
	return true
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (produced when a token has no usable phonemes)
// are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
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

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
