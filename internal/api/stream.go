package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// streamChunkChars is the delta frame size. Generation is not incremental
// upstream, so the finished answer is replayed in fixed-size chunks to keep
// the client-side frame handling identical to a true token stream.
const streamChunkChars = 64

func handleChatStream(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, conv, ok := decodeChatRequest(deps, w, r)
		if !ok {
			return
		}

		flusher, fok := w.(http.Flusher)
		if !fok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		result := deps.Runner.Run(r.Context(), enrichQuery(req.Message, conv))
		recordTurns(conv, req.Message, result)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		writeSSE(w, flusher, "meta", map[string]any{
			"conversation_id": conv.ID(),
			"sources":         result.Sources,
			"attempts":        result.Attempts,
			"query_analysis":  result.Analysis,
		})

		for _, chunk := range splitChunks(result.Response, streamChunkChars) {
			writeSSE(w, flusher, "delta", map[string]any{"text": chunk})
		}

		writeSSE(w, flusher, "done", map[string]any{
			"error": emptyToNil(result.Err),
		})
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

// splitChunks cuts s into size-byte pieces without splitting a UTF-8 rune.
func splitChunks(s string, size int) []string {
	if s == "" {
		return nil
	}
	var chunks []string
	runes := []rune(s)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
