// Package transcript fixes speech-to-text errors in domain vocabulary.
//
// STT backends routinely mishear proper nouns that were rare in their
// training data: product names, project jargon, people. The [Corrector]
// walks a transcript, tests token windows against the server's configured
// vocabulary list with a phonetic matcher, and substitutes the canonical
// spelling of any term that matches. Each substitution is reported as a
// [Correction] so the session can log it before emitting the transcription
// event.
//
// The vocabulary is passed per call, so a configuration reload applies to
// the next utterance without coordination.
package transcript

import (
	"strings"
	"unicode"

	"github.com/sotto-ai/sotto/internal/transcript/phonetic"
)

// Correction records a single vocabulary substitution.
type Correction struct {
	// Original is the text as produced by the STT backend.
	Original string
	// Corrected is the canonical vocabulary term substituted for it.
	Corrected string
	// Confidence is the similarity score in [0, 1] that selected the term.
	Confidence float64
}

// Corrector applies vocabulary corrections to transcript text. It is
// read-only after construction and safe for concurrent use.
type Corrector struct {
	matcher *phonetic.Matcher
}

// NewCorrector returns a Corrector that ranks vocabulary candidates with m.
func NewCorrector(m *phonetic.Matcher) *Corrector {
	return &Corrector{matcher: m}
}

// Apply substitutes misheard vocabulary terms in text and returns the
// corrected text along with the substitutions made, in order of appearance.
//
// The text is split into whitespace tokens. At each position the corrector
// scores every window from a single token up to the longest vocabulary
// term and substitutes the best-scoring match, so a multi-word term beats
// a partial match but an exact single word is never swallowed by a longer
// window. Windows never straddle punctuation; leading and trailing
// punctuation of a matched window is preserved around the substituted
// term. A nil Corrector or an empty vocabulary returns text unchanged.
func (c *Corrector) Apply(text string, vocab []string) (string, []Correction) {
	if c == nil || c.matcher == nil {
		return text, nil
	}
	v := phonetic.Compile(vocab)
	if v.Empty() {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	parts := make([]tokenParts, len(tokens))
	for i, tok := range tokens {
		parts[i] = splitToken(tok)
	}

	out := make([]string, 0, len(tokens))
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		// One token beyond the longest term, so a split mishearing of a
		// single-word term ("post gress") still forms a window.
		maxN := v.MaxWords() + 1
		if rest := len(tokens) - i; maxN > rest {
			maxN = rest
		}

		var bestN int
		var bestWindow, bestTerm string
		var bestConf float64
		for n := 1; n <= maxN; n++ {
			window, ok := windowText(parts[i : i+n])
			if !ok {
				break
			}
			term, conf, ok := c.matcher.MatchVocabulary(window, v)
			if !ok {
				continue
			}
			if conf > bestConf || (conf == bestConf && n > bestN) {
				bestN, bestWindow, bestTerm, bestConf = n, window, term, conf
			}
		}

		if bestN == 0 {
			out = append(out, tokens[i])
			i++
			continue
		}
		if bestTerm != bestWindow {
			corrections = append(corrections, Correction{
				Original:   bestWindow,
				Corrected:  bestTerm,
				Confidence: bestConf,
			})
		}
		out = append(out, parts[i].lead+bestTerm+parts[i+bestN-1].trail)
		i += bestN
	}

	return strings.Join(out, " "), corrections
}

type tokenParts struct {
	lead, core, trail string
}

// splitToken separates surrounding punctuation from the word itself so
// "Postgres," can match the term "Postgres". Interior punctuation such as
// apostrophes and hyphens stays with the core.
func splitToken(tok string) tokenParts {
	core := strings.TrimFunc(tok, isPunct)
	if core == "" {
		return tokenParts{lead: tok}
	}
	start := strings.Index(tok, core)
	return tokenParts{
		lead:  tok[:start],
		core:  core,
		trail: tok[start+len(core):],
	}
}

func isPunct(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r)
}

// windowText joins the cores of a candidate window. It refuses windows
// containing a bare punctuation token or interior punctuation, so a match
// never crosses a clause boundary like "Redis, then".
func windowText(parts []tokenParts) (string, bool) {
	for j, p := range parts {
		if p.core == "" {
			return "", false
		}
		if j > 0 && p.lead != "" {
			return "", false
		}
		if j < len(parts)-1 && p.trail != "" {
			return "", false
		}
	}
	if len(parts) == 1 {
		return parts[0].core, true
	}
	cores := make([]string, len(parts))
	for j, p := range parts {
		cores[j] = p.core
	}
	return strings.Join(cores, " "), true
}
