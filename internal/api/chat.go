// Package api exposes the question-answering pipeline over HTTP (chi) and
// MCP. The HTTP surface is a small JSON API: chat, streaming chat, the
// conversation store, and health.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"docqa/internal/conversation"
	"docqa/internal/rag"
)

const maxRequestBodySize = 1 << 20 // 1MB

// AnswerRunner runs the full adaptive workflow for one query.
type AnswerRunner interface {
	Run(ctx context.Context, query string) rag.Result
}

// IndexStats reports index size for the health endpoint.
type IndexStats interface {
	Count() (int, error)
}

// Deps holds the collaborators of the HTTP layer.
type Deps struct {
	Runner        AnswerRunner
	Conversations *conversation.Store
	Index         IndexStats
}

// NewHandler returns the JSON API handler.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/api/health", handleHealth(deps))
	r.Post("/api/chat", handleChat(deps))
	r.Post("/api/chat/stream", handleChatStream(deps))

	r.Post("/api/conversations", handleCreateConversation(deps))
	r.Get("/api/conversations", handleListConversations(deps))
	r.Get("/api/conversations/{id}", handleGetConversation(deps))
	r.Get("/api/conversations/{id}/context", handleConversationContext(deps))
	r.Delete("/api/conversations/{id}", handleDeleteConversation(deps))

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := -1
		if deps.Index != nil {
			if n, err := deps.Index.Count(); err == nil {
				count = n
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"indexed_chunks": count,
		})
	}
}

// ChatRequest is the body of POST /api/chat and /api/chat/stream.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, conv, ok := decodeChatRequest(deps, w, r)
		if !ok {
			return
		}

		result := deps.Runner.Run(r.Context(), enrichQuery(req.Message, conv))
		recordTurns(conv, req.Message, result)

		writeJSON(w, http.StatusOK, map[string]any{
			"response":        result.Response,
			"sources":         result.Sources,
			"conversation_id": conv.ID(),
			"attempts":        result.Attempts,
			"query_analysis":  result.Analysis,
			"error":           emptyToNil(result.Err),
		})
	}
}

// decodeChatRequest validates the body and resolves the conversation. A
// false return means the error response has already been written.
func decodeChatRequest(deps Deps, w http.ResponseWriter, r *http.Request) (ChatRequest, *conversation.Conversation, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return ChatRequest{}, nil, false
	}
	if req.Message == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
		return ChatRequest{}, nil, false
	}

	conv := deps.Conversations.GetOrCreate(req.ConversationID)
	return req, conv, true
}

// enrichQuery appends the conversation's recent context so follow-up
// questions resolve pronouns and elliptical references. The workflow strips
// the suffix before intent classification and term extraction.
func enrichQuery(message string, conv *conversation.Conversation) string {
	bundle := conv.ContextForRAG(false)
	if bundle.RecentContext == "" {
		return message
	}
	return message + "\n\nContext: " + bundle.RecentContext
}

func recordTurns(conv *conversation.Conversation, message string, result rag.Result) {
	conv.AddTurn(conversation.RoleUser, message)
	conv.AddTurn(conversation.RoleAssistant, result.Response)
}

func handleCreateConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			ConversationID string `json:"conversation_id,omitempty"`
		}
		// An empty body means "create with a generated id".
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		conv := deps.Conversations.GetOrCreate(req.ConversationID)
		writeJSON(w, http.StatusCreated, map[string]any{
			"conversation_id": conv.ID(),
			"turn_count":      conv.TurnCount(),
		})
	}
}

func handleListConversations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"conversations": deps.Conversations.List(),
		})
	}
}

func handleGetConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv := deps.Conversations.Get(chi.URLParam(r, "id"))
		if conv == nil {
			httpError(w, http.StatusNotFound, "not_found_error", "conversation not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"summary": conv.Summary(),
			"history": conv.History(),
		})
	}
}

func handleConversationContext(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv := deps.Conversations.Get(chi.URLParam(r, "id"))
		if conv == nil {
			httpError(w, http.StatusNotFound, "not_found_error", "conversation not found")
			return
		}

		compact := true
		if raw := r.URL.Query().Get("compact"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid compact value %q", raw)
				return
			}
			compact = v
		}

		writeJSON(w, http.StatusOK, conv.ContextForRAG(compact))
	}
}

func handleDeleteConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Conversations.Delete(chi.URLParam(r, "id")) {
			httpError(w, http.StatusNotFound, "not_found_error", "conversation not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
