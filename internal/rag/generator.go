package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

const noDocsResponse = "I could not find relevant information to answer your question. Please rephrase your query."

const answerSystemPrompt = `You are a helpful technical assistant. Answer questions based ONLY on the provided context. If the context does not contain enough information, say so. Cite the source documents you used.`

const answerPromptTemplate = `Context from documentation:

%s

Question: %s

Answer the question using only the context above.`

const answerWithHistoryTemplate = `Context from documentation:

%s

Previous conversation:
%s

Question: %s

Answer the question using only the context above.`

const refineSystemPrompt = "You rewrite search queries to improve document retrieval. Respond with the rewritten query only, no explanation."

const refinePromptTemplate = `The following query did not retrieve enough relevant documentation:

Query: %s

The answer produced was:
%s

Rewrite the query to be more specific and more likely to match documentation. Respond with the rewritten query only.`

// generate produces an answer from the built context. An empty context
// short-circuits to a fixed response without calling the engine. Conversation
// context, when present, goes into the prompt as its own block so earlier
// turns cannot be mistaken for documentation.
func (o *Orchestrator) generate(ctx context.Context, query, conversationContext, docContext string) (string, error) {
	if strings.TrimSpace(docContext) == "" {
		return noDocsResponse, nil
	}
	prompt := fmt.Sprintf(answerPromptTemplate, docContext, query)
	if conversationContext != "" {
		prompt = fmt.Sprintf(answerWithHistoryTemplate, docContext, conversationContext, query)
	}
	resp, err := o.engine.Generate(ctx, o.model, prompt, answerSystemPrompt, 0.2)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(resp), nil
}

// refine rewrites a query that produced an unsatisfying answer. On failure
// it falls back to the original query so the retry still happens.
func (o *Orchestrator) refine(ctx context.Context, query, lastResponse string) string {
	prompt := fmt.Sprintf(refinePromptTemplate, query, truncate(lastResponse, 500))
	resp, err := o.engine.Generate(ctx, o.model, prompt, refineSystemPrompt, 0.7)
	if err != nil {
		slog.Warn("query refinement failed, retrying with original query", "error", err)
		return query
	}
	refined := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp), `"`))
	if refined == "" {
		return query
	}
	return refined
}

// truncate cuts s to at most n bytes plus an ellipsis, backing the cut up so
// it never lands inside a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
