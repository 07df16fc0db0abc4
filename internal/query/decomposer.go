// Package query turns a raw user question into a search plan: an intent
// classification, a comprehensiveness flag, and an ordered list of sub-queries
// derived from the question's key terms. Decomposition is pure string work and
// fully deterministic: the same input always yields the same plan.
package query

import (
	"regexp"
	"strings"
)

// Intent classifies what shape of answer a query is asking for.
type Intent string

const (
	IntentProcedural    Intent = "procedural"
	IntentComprehensive Intent = "comprehensive"
	IntentExplanatory   Intent = "explanatory"
	IntentSpecific      Intent = "specific"
	IntentGeneral       Intent = "general"
)

// SearchQuery is a decomposed search plan for one user query.
type SearchQuery struct {
	Original        string
	Decomposed      []string
	Intent          Intent
	IsComprehensive bool
}

// maxSubQueries caps the number of sub-queries issued per retrieval pass.
// Earlier entries take priority on truncation.
const maxSubQueries = 8

// contextSuffix marks operator-injected conversation context appended to a
// query. Everything from this marker on is stripped before analysis.
const contextSuffix = "\n\nContext:"

var (
	proceduralRe    = regexp.MustCompile(`\bhow to\b|\bsteps\b`)
	comprehensiveRe = regexp.MustCompile(`\ball\b|\blist\b|\bshow\b|\benumerate\b|\bwhat are\b`)
	explanatoryRe   = regexp.MustCompile(`\bwhy\b|\bexplain\b|\bwhat is\b|\bwhat are\b`)
	specificRe      = regexp.MustCompile(`\bfind\b|\bget\b|\bfetch\b`)

	quotedRe = regexp.MustCompile(`"([^"]+)"`)
	wordRe   = regexp.MustCompile(`[a-z0-9]+(?:[-_'][a-z0-9]+)*`)
)

// stopWords is a fixed universal set: articles, auxiliaries, pronouns,
// prepositions, and question scaffolding. Deliberately no domain vocabulary.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"do": {}, "does": {}, "did": {}, "have": {}, "has": {}, "had": {},
	"can": {}, "could": {}, "will": {}, "would": {}, "shall": {}, "should": {},
	"may": {}, "might": {}, "must": {},
	"i": {}, "you": {}, "he": {}, "she": {}, "it": {}, "we": {}, "they": {},
	"me": {}, "my": {}, "your": {}, "his": {}, "her": {}, "its": {}, "our": {}, "their": {},
	"this": {}, "that": {}, "these": {}, "those": {},
	"of": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "from": {},
	"with": {}, "by": {}, "about": {}, "as": {}, "into": {}, "onto": {},
	"and": {}, "or": {}, "but": {}, "not": {}, "no": {},
	"what": {}, "which": {}, "who": {}, "whom": {}, "whose": {},
	"when": {}, "where": {}, "why": {}, "how": {},
	"all": {}, "any": {}, "some": {}, "there": {},
	"please": {},
}

// Decompose analyses a raw user query and returns its search plan.
// A trailing "\n\nContext: ..." suffix is stripped first: that suffix is
// injected conversation context, not part of the semantic question.
func Decompose(raw string) SearchQuery {
	clean := StripContext(raw)

	intent := DetectIntent(clean)
	comprehensive := IsComprehensive(clean)

	terms := keyTerms(clean)

	expand := comprehensive ||
		intent == IntentComprehensive ||
		intent == IntentProcedural ||
		intent == IntentExplanatory

	subs := buildSubQueries(clean, terms, expand)

	return SearchQuery{
		Original:        clean,
		Decomposed:      subs,
		Intent:          intent,
		IsComprehensive: comprehensive,
	}
}

// StripContext removes the operator-injected conversation context suffix.
func StripContext(raw string) string {
	if idx := strings.Index(raw, contextSuffix); idx >= 0 {
		raw = raw[:idx]
	}
	return strings.TrimSpace(raw)
}

// ExtractContext returns the injected conversation context suffix, or "" when
// the query carries none.
func ExtractContext(raw string) string {
	if idx := strings.Index(raw, contextSuffix); idx >= 0 {
		return strings.TrimSpace(raw[idx+len(contextSuffix):])
	}
	return ""
}

// DetectIntent classifies the query with ordered first-match-wins rules.
func DetectIntent(q string) Intent {
	ql := strings.ToLower(q)
	switch {
	case proceduralRe.MatchString(ql):
		return IntentProcedural
	case comprehensiveRe.MatchString(ql):
		return IntentComprehensive
	case explanatoryRe.MatchString(ql):
		return IntentExplanatory
	case specificRe.MatchString(ql):
		return IntentSpecific
	default:
		return IntentGeneral
	}
}

// IsComprehensive reports whether the query's phrasing implies "all/list/show"
// semantics. This overlaps with but is independent of DetectIntent: procedural
// phrasing wins the intent classification even when a comprehensive indicator
// is present, so callers consult both signals.
func IsComprehensive(q string) bool {
	return comprehensiveRe.MatchString(strings.ToLower(q))
}

// keyTerms tokenizes the query, preserving quoted phrases as single terms,
// drops stop words, and de-duplicates preserving first-seen order.
func keyTerms(q string) []string {
	ql := strings.ToLower(q)

	var terms []string

	// Quoted phrases survive as single terms; blank them out of the remainder
	// so their words are not re-extracted individually.
	ql = quotedRe.ReplaceAllStringFunc(ql, func(m string) string {
		phrase := strings.TrimSpace(strings.Trim(m, `"`))
		if phrase != "" {
			terms = append(terms, phrase)
		}
		return " "
	})

	for _, w := range wordRe.FindAllString(ql, -1) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		terms = append(terms, w)
	}

	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// buildSubQueries emits sub-queries from the extracted key terms. The cleaned
// original query is always sub-query #0. Comprehensive-shaped queries get the
// full expansion (singles, adjacent pairs, full join, skip-one pairs, 3-term
// windows); narrow queries get singles and adjacent pairs only.
func buildSubQueries(original string, terms []string, expand bool) []string {
	var subs []string
	subs = append(subs, original)

	for _, t := range terms {
		subs = append(subs, t)
	}
	for i := 0; i+1 < len(terms); i++ {
		subs = append(subs, terms[i]+" "+terms[i+1])
	}

	if expand {
		if len(terms) > 1 {
			subs = append(subs, strings.Join(terms, " "))
		}
		for i := 0; i+2 < len(terms); i++ {
			subs = append(subs, terms[i]+" "+terms[i+2])
		}
		for i := 0; i+2 < len(terms); i++ {
			subs = append(subs, strings.Join(terms[i:i+3], " "))
		}
	}

	return dedupeAndCap(subs, maxSubQueries)
}

// dedupeAndCap removes case-insensitive duplicates (after whitespace
// normalization) preserving order, then truncates to limit.
func dedupeAndCap(subs []string, limit int) []string {
	seen := make(map[string]struct{}, len(subs))
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		key := strings.Join(strings.Fields(strings.ToLower(s)), " ")
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}
