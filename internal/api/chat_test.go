package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docqa/internal/composer"
	"docqa/internal/conversation"
	"docqa/internal/rag"
)

// fakeRunner records received queries and returns a canned result.
type fakeRunner struct {
	result  rag.Result
	queries []string
}

func (f *fakeRunner) Run(ctx context.Context, query string) rag.Result {
	f.queries = append(f.queries, query)
	return f.result
}

type fakeIndexStats struct{ count int }

func (f fakeIndexStats) Count() (int, error) { return f.count, nil }

func newTestHandler(runner *fakeRunner) (http.Handler, *conversation.Store) {
	store := conversation.NewStore(0, 0)
	h := NewHandler(Deps{
		Runner:        runner,
		Conversations: store,
		Index:         fakeIndexStats{count: 42},
	})
	return h, store
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChat_AnswersAndRecordsTurns(t *testing.T) {
	runner := &fakeRunner{result: rag.Result{
		Response: "Use port 8080.",
		Sources:  []composer.Source{{Ref: "config.md:1-5", Section: "Ports"}},
		Attempts: 1,
		Analysis: rag.QueryAnalysis{Intent: "search", Topics: []string{"ports"}},
	}}
	h, store := newTestHandler(runner)

	rec := doJSON(t, h, http.MethodPost, "/api/chat", `{"message":"what port does it use"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Response       string `json:"response"`
		ConversationID string `json:"conversation_id"`
		Attempts       int    `json:"attempts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Response != "Use port 8080." || resp.Attempts != 1 {
		t.Errorf("response = %+v", resp)
	}
	if resp.ConversationID == "" {
		t.Fatal("conversation_id empty")
	}

	conv := store.Get(resp.ConversationID)
	if conv == nil {
		t.Fatal("conversation not stored")
	}
	history := conv.History()
	if len(history) != 2 {
		t.Fatalf("history len = %d, want user+assistant", len(history))
	}
	if history[0].Role != conversation.RoleUser || history[1].Role != conversation.RoleAssistant {
		t.Errorf("roles = %s, %s", history[0].Role, history[1].Role)
	}
}

func TestChat_FollowUpCarriesContext(t *testing.T) {
	runner := &fakeRunner{result: rag.Result{Response: "Answer."}}
	h, _ := newTestHandler(runner)

	rec := doJSON(t, h, http.MethodPost, "/api/chat", `{"message":"first question"}`)
	var first struct {
		ConversationID string `json:"conversation_id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &first)

	doJSON(t, h, http.MethodPost, "/api/chat",
		`{"message":"and a follow-up?","conversation_id":"`+first.ConversationID+`"}`)

	if len(runner.queries) != 2 {
		t.Fatalf("runner calls = %d, want 2", len(runner.queries))
	}
	if strings.Contains(runner.queries[0], "\n\nContext:") {
		t.Error("first query carried context, want bare")
	}
	if !strings.Contains(runner.queries[1], "\n\nContext:") {
		t.Errorf("follow-up query = %q, want conversation context suffix", runner.queries[1])
	}
	if !strings.Contains(runner.queries[1], "first question") {
		t.Error("context suffix missing prior turn")
	}
}

func TestChat_MissingMessage(t *testing.T) {
	h, _ := newTestHandler(&fakeRunner{})

	rec := doJSON(t, h, http.MethodPost, "/api/chat", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "message is required") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestChatStream_FrameSequence(t *testing.T) {
	runner := &fakeRunner{result: rag.Result{
		Response: strings.Repeat("chunky answer ", 10),
		Attempts: 2,
	}}
	h, _ := newTestHandler(runner)

	rec := doJSON(t, h, http.MethodPost, "/api/chat/stream", `{"message":"stream it"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	body := rec.Body.String()
	metaIdx := strings.Index(body, "event: meta")
	deltaIdx := strings.Index(body, "event: delta")
	doneIdx := strings.Index(body, "event: done")
	if metaIdx == -1 || deltaIdx == -1 || doneIdx == -1 {
		t.Fatalf("missing frames in stream: %s", body)
	}
	if !(metaIdx < deltaIdx && deltaIdx < doneIdx) {
		t.Errorf("frame order meta=%d delta=%d done=%d", metaIdx, deltaIdx, doneIdx)
	}

	// Reassembling the deltas yields the full response.
	var rebuilt strings.Builder
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload); err == nil {
			rebuilt.WriteString(payload.Text)
		}
	}
	if rebuilt.String() != runner.result.Response {
		t.Errorf("rebuilt = %q, want full response", rebuilt.String())
	}
}

func TestConversationLifecycle(t *testing.T) {
	h, _ := newTestHandler(&fakeRunner{result: rag.Result{Response: "ok"}})

	// Create.
	rec := doJSON(t, h, http.MethodPost, "/api/conversations", `{"conversation_id":"conv-1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	// Populate.
	doJSON(t, h, http.MethodPost, "/api/chat", `{"message":"hello","conversation_id":"conv-1"}`)

	// Get.
	rec = doJSON(t, h, http.MethodGet, "/api/conversations/conv-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got struct {
		History []conversation.Turn `json:"history"`
	}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if len(got.History) != 2 {
		t.Errorf("history len = %d, want 2", len(got.History))
	}

	// Context view.
	rec = doJSON(t, h, http.MethodGet, "/api/conversations/conv-1/context?compact=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("context status = %d", rec.Code)
	}
	var bundle conversation.ContextBundle
	json.Unmarshal(rec.Body.Bytes(), &bundle)
	if bundle.ConversationID != "conv-1" || bundle.TurnCount != 2 {
		t.Errorf("bundle = %+v", bundle)
	}

	// List.
	rec = doJSON(t, h, http.MethodGet, "/api/conversations", "")
	if !strings.Contains(rec.Body.String(), "conv-1") {
		t.Errorf("list body = %s", rec.Body.String())
	}

	// Delete.
	rec = doJSON(t, h, http.MethodDelete, "/api/conversations/conv-1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/conversations/conv-1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestConversationContext_InvalidCompactParam(t *testing.T) {
	h, store := newTestHandler(&fakeRunner{})
	store.GetOrCreate("conv-1")

	rec := doJSON(t, h, http.MethodGet, "/api/conversations/conv-1/context?compact=banana", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(&fakeRunner{})

	rec := doJSON(t, h, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var health struct {
		Status        string `json:"status"`
		IndexedChunks int    `json:"indexed_chunks"`
	}
	json.Unmarshal(rec.Body.Bytes(), &health)
	if health.Status != "ok" || health.IndexedChunks != 42 {
		t.Errorf("health = %+v", health)
	}
}
