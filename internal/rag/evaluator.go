package rag

import "strings"

// negativePhrases flag a response that admits it has no answer. Matching is
// case-insensitive substring search.
var negativePhrases = []string{
	"could not find",
	"not found",
	"don't have",
	"not available",
	"no information",
	"unable to",
	"i apologize",
	"i'm sorry",
}

// Evaluate heuristically judges whether a generated response is acceptable.
//
// Comprehensive queries are held to the strict policy: the answer must be
// non-negative AND backed by retrieved documents. Narrow queries use the
// lenient policy: a non-negative answer is accepted even without evidence.
// Regardless of either policy, reaching the attempt cap forces acceptance,
// which guarantees loop termination.
func Evaluate(response string, hasDocs bool, attempts, maxAttempts int, isComprehensive bool) bool {
	if attempts >= maxAttempts {
		return true
	}

	lower := strings.ToLower(response)
	isNegative := false
	for _, phrase := range negativePhrases {
		if strings.Contains(lower, phrase) {
			isNegative = true
			break
		}
	}

	if isComprehensive {
		return !isNegative && hasDocs
	}
	return !isNegative
}
