package transcript

import (
	"regexp"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// DefaultTermTable maps common mis-transcriptions of technical terms to their
// canonical spelling. Keys are matched case-insensitively on whole words.
var DefaultTermTable = map[string]string{
	"java script":    "JavaScript",
	"type script":    "TypeScript",
	"react js":       "React",
	"node js":        "Node.js",
	"sequel":         "SQL",
	"no sequel":      "NoSQL",
	"post gress":     "PostgreSQL",
	"postgres":       "PostgreSQL",
	"my sequel":      "MySQL",
	"get hub":        "GitHub",
	"git hub":        "GitHub",
	"cooper netties": "Kubernetes",
	"kuber nets":     "Kubernetes",
	"dev ops":        "DevOps",
	"a p i":          "API",
	"rest api":       "REST API",
	"sass":           "SaaS",
	"pie torch":      "PyTorch",
	"tensor flow":    "TensorFlow",
}

// Correction records one replacement the corrector made.
type Correction struct {
	Original  string
	Corrected string
	Method    string // "table" or "phonetic"
}

// rule is one compiled find/replace entry.
type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Corrector applies the technical-term correction table to finalized
// transcript text. Matching is case-insensitive and word-boundary-safe, and
// the operation is idempotent: correcting already-corrected text is a no-op.
//
// An optional phonetic pass catches near-miss single words ("kubernetis")
// that the fixed table cannot enumerate. A Corrector is read-only after
// construction and safe for concurrent use.
type Corrector struct {
	rules []rule

	phonetic          bool
	canonical         []string
	phoneticThreshold float64
}

// CorrectorOption is a functional option for configuring a [Corrector].
type CorrectorOption func(*Corrector)

// WithPhoneticAssist enables the phonetic near-miss pass over the canonical
// terms. threshold is the minimum Jaro-Winkler similarity (0..1) required to
// accept a phonetic replacement; 0 uses the default 0.88.
func WithPhoneticAssist(threshold float64) CorrectorOption {
	return func(c *Corrector) {
		c.phonetic = true
		if threshold > 0 {
			c.phoneticThreshold = threshold
		}
	}
}

// NewCorrector compiles the term table into word-boundary-safe,
// case-insensitive replacement rules. Regex metacharacters in keys are
// escaped. Longer keys are applied first so multi-word entries win over any
// single-word subset.
func NewCorrector(table map[string]string, opts ...CorrectorOption) *Corrector {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	c := &Corrector{phoneticThreshold: 0.88}
	seen := make(map[string]struct{}, len(table))
	for _, k := range keys {
		v := table[k]
		c.rules = append(c.rules, rule{
			pattern:     regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(k) + `\b`),
			replacement: v,
		})
		if _, ok := seen[strings.ToLower(v)]; !ok {
			seen[strings.ToLower(v)] = struct{}{}
			c.canonical = append(c.canonical, v)
		}
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct applies the table (and the phonetic pass, when enabled) to text and
// returns the corrected text with the list of replacements made.
func (c *Corrector) Correct(text string) (string, []Correction) {
	var corrections []Correction

	for _, r := range c.rules {
		text = r.pattern.ReplaceAllStringFunc(text, func(match string) string {
			if match == r.replacement {
				// Already canonical; recording it would break idempotency
				// reporting.
				return match
			}
			corrections = append(corrections, Correction{
				Original:  match,
				Corrected: r.replacement,
				Method:    "table",
			})
			return r.replacement
		})
	}

	if c.phonetic {
		text, corrections = c.applyPhonetic(text, corrections)
	}

	return text, corrections
}

// applyPhonetic replaces single tokens that phonetically align with a
// canonical term. Tokens that already equal a canonical term (any case) are
// left alone, which keeps the pass idempotent.
func (c *Corrector) applyPhonetic(text string, corrections []Correction) (string, []Correction) {
	tokens := strings.Fields(text)
	changed := false

	for i, tok := range tokens {
		word := strings.Trim(tok, ".,!?;:")
		if word == "" || c.isCanonical(word) {
			continue
		}

		best, ok := c.phoneticMatch(word)
		if !ok {
			continue
		}
		tokens[i] = strings.Replace(tok, word, best, 1)
		corrections = append(corrections, Correction{
			Original:  word,
			Corrected: best,
			Method:    "phonetic",
		})
		changed = true
	}

	if !changed {
		return text, corrections
	}
	return strings.Join(tokens, " "), corrections
}

// isCanonical reports whether word already is one of the canonical terms.
func (c *Corrector) isCanonical(word string) bool {
	for _, term := range c.canonical {
		if strings.EqualFold(word, term) {
			return true
		}
	}
	return false
}

// phoneticMatch finds the canonical term whose Double Metaphone code overlaps
// word's and whose Jaro-Winkler similarity clears the threshold. Multi-word
// canonical terms are skipped; the token pass cannot align them.
func (c *Corrector) phoneticMatch(word string) (string, bool) {
	w1, w2 := matchr.DoubleMetaphone(strings.ToLower(word))

	var (
		best      string
		bestScore float64
	)
	for _, term := range c.canonical {
		if strings.ContainsRune(term, ' ') {
			continue
		}
		t1, t2 := matchr.DoubleMetaphone(strings.ToLower(term))
		if !codesOverlap(w1, w2, t1, t2) {
			continue
		}
		score := matchr.JaroWinkler(strings.ToLower(word), strings.ToLower(term), false)
		if score > bestScore {
			best, bestScore = term, score
		}
	}

	if bestScore < c.phoneticThreshold {
		return "", false
	}
	return best, true
}

// codesOverlap reports whether any non-empty phonetic code is shared.
func codesOverlap(a1, a2, b1, b2 string) bool {
	for _, a := range []string{a1, a2} {
		if a == "" {
			continue
		}
		if a == b1 || (b2 != "" && a == b2) {
			return true
		}
	}
	return false
}
