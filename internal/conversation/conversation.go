// Package conversation maintains per-conversation turn history and produces
// the bounded context bundles the RAG pipeline consumes. Older turns are
// compacted into a summary block while recent turns stay verbatim, so
// follow-up questions ("the third point", "that") can still be resolved
// against the exact wording of the latest answer.
package conversation

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single immutable exchange entry.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	TurnID    int       `json:"turn_id"`
}

// ContextBundle is the context view handed to the RAG pipeline.
type ContextBundle struct {
	RecentContext  string `json:"recent_context"`
	FullContext    string `json:"full_context"`
	ConversationID string `json:"conversation_id"`
	TurnCount      int    `json:"turn_count"`
}

// Summary describes one conversation for listing.
type Summary struct {
	ConversationID    string    `json:"conversation_id"`
	TurnCount         int       `json:"turn_count"`
	UserMessages      int       `json:"user_messages"`
	AssistantMessages int       `json:"assistant_messages"`
	FirstMessage      string    `json:"first_message,omitempty"`
	LastMessage       string    `json:"last_message,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	LastUpdatedAt     time.Time `json:"last_updated_at,omitempty"`
}

const (
	defaultMaxHistoryTurns = 50

	// recentWindowTurns is the number of trailing turns kept verbatim by
	// compaction. Conversations at or under this size skip compaction entirely.
	recentWindowTurns = 6

	recentContextTurns   = 3
	recentContextCharCap = 200

	// Inside the recent window, turns other than the very last one truncate at
	// this many characters. The last turn is never truncated: follow-ups often
	// reference numbered items from it by exact text.
	recentWindowCharCap = 800

	entityCapPerTurn   = 5
	entityCapOverall   = 8
	restatementCharCap = 300
	olderTurnsExamined = 5
)

var (
	capitalizedRe = regexp.MustCompile(`\b[A-Z][a-zA-Z]*(?:\s+[A-Z][a-zA-Z]*)*\b`)
	quotedTermRe  = regexp.MustCompile(`"([^"]+)"`)
)

// Conversation owns the ordered turn history for one conversation id.
// AddTurn is serialized by an internal mutex; reads take the same lock, so a
// single conversation is safe for concurrent use. Distinct conversations are
// fully independent.
type Conversation struct {
	mu sync.Mutex

	id              string
	createdAt       time.Time
	maxHistoryTurns int

	turns       []Turn
	turnCounter int
}

// newConversation is only called by the Store, which assigns the id.
func newConversation(id string, maxHistoryTurns int) *Conversation {
	if maxHistoryTurns <= 0 {
		maxHistoryTurns = defaultMaxHistoryTurns
	}
	return &Conversation{
		id:              id,
		createdAt:       time.Now().UTC(),
		maxHistoryTurns: maxHistoryTurns,
	}
}

// ID returns the conversation id.
func (c *Conversation) ID() string { return c.id }

// AddTurn appends a turn, assigning a strictly increasing turn id. When the
// history exceeds the configured cap, the oldest turns are evicted (FIFO).
func (c *Conversation) AddTurn(role Role, content string) Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	turn := Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		TurnID:    c.turnCounter,
	}
	c.turnCounter++
	c.turns = append(c.turns, turn)

	if len(c.turns) > c.maxHistoryTurns {
		c.turns = c.turns[len(c.turns)-c.maxHistoryTurns:]
	}
	return turn
}

// TurnCount returns the number of retained turns.
func (c *Conversation) TurnCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// History returns a copy of the retained turns in order.
func (c *Conversation) History() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// ContextForRAG returns the context bundle for a retrieval pass. With compact
// set, older turns are collapsed into a summary block; otherwise the full
// window is returned verbatim. Compaction is idempotent: it reads history and
// never mutates it.
func (c *Conversation) ContextForRAG(compact bool) ContextBundle {
	c.mu.Lock()
	defer c.mu.Unlock()

	var full string
	if compact {
		full = c.compactContextLocked()
	} else {
		full = c.contextWindowLocked()
	}

	return ContextBundle{
		RecentContext:  c.recentContextLocked(recentContextTurns),
		FullContext:    full,
		ConversationID: c.id,
		TurnCount:      len(c.turns),
	}
}

// Summary returns listing metadata for this conversation.
func (c *Conversation) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		ConversationID: c.id,
		TurnCount:      len(c.turns),
		StartedAt:      c.createdAt,
	}
	if len(c.turns) == 0 {
		return s
	}
	for _, t := range c.turns {
		if t.Role == RoleUser {
			s.UserMessages++
		} else {
			s.AssistantMessages++
		}
	}
	s.FirstMessage = truncate(c.turns[0].Content, 100)
	s.LastMessage = truncate(c.turns[len(c.turns)-1].Content, 100)
	s.LastUpdatedAt = c.turns[len(c.turns)-1].Timestamp
	return s
}

// recentContextLocked formats the last n turns, each truncated for brevity.
func (c *Conversation) recentContextLocked(n int) string {
	if len(c.turns) == 0 {
		return ""
	}
	start := len(c.turns) - n
	if start < 0 {
		start = 0
	}

	var lines []string
	for _, t := range c.turns[start:] {
		lines = append(lines, fmt.Sprintf("%s: %s", roleLabel(t.Role), truncate(t.Content, recentContextCharCap)))
	}
	return strings.Join(lines, "\n")
}

// contextWindowLocked renders the full retained history verbatim.
func (c *Conversation) contextWindowLocked() string {
	if len(c.turns) == 0 {
		return ""
	}
	var lines []string
	for _, t := range c.turns {
		lines = append(lines, roleLabel(t.Role)+":", t.Content, "")
	}
	return strings.Join(lines, "\n")
}

// compactContextLocked keeps the trailing window verbatim and collapses older
// turns into a [PREVIOUS CONTEXT SUMMARY] block of key entities plus
// abbreviated restatements of prior assistant answers.
func (c *Conversation) compactContextLocked() string {
	if len(c.turns) == 0 {
		return ""
	}
	if len(c.turns) <= recentWindowTurns {
		return c.contextWindowLocked()
	}

	recentStart := len(c.turns) - recentWindowTurns
	older := c.turns[:recentStart]

	var parts []string

	examineStart := len(older) - olderTurnsExamined
	if examineStart < 0 {
		examineStart = 0
	}

	var keyPoints []string
	var restatements []string
	for i, t := range older[examineStart:] {
		keyPoints = append(keyPoints, extractKeyEntities(t.Content)...)
		if t.Role == RoleAssistant && t.Content != "" {
			restatements = append(restatements,
				fmt.Sprintf("Previous response %d: %s", i+1, truncate(t.Content, restatementCharCap)))
		}
	}

	if len(keyPoints) > 0 || len(restatements) > 0 {
		parts = append(parts, "[PREVIOUS CONTEXT SUMMARY]")
		if unique := dedupeFold(keyPoints, entityCapOverall); len(unique) > 0 {
			parts = append(parts, "Key topics discussed: "+strings.Join(unique, ", "))
		}
		if len(restatements) > 3 {
			restatements = restatements[:3]
		}
		parts = append(parts, restatements...)
		parts = append(parts, "")
	}

	parts = append(parts, "[RECENT CONVERSATION]")
	recent := c.turns[recentStart:]
	for i, t := range recent {
		content := t.Content
		if i != len(recent)-1 {
			content = truncate(content, recentWindowCharCap)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", roleLabel(t.Role), content))
	}

	return strings.Join(parts, "\n")
}

// extractKeyEntities pulls capitalized phrases and quoted terms from the
// leading portion of the text, deduplicated case-insensitively.
func extractKeyEntities(text string) []string {
	head := text
	if len(head) > 500 {
		head = head[:500]
	}

	var combined []string
	combined = append(combined, capitalizedRe.FindAllString(head, -1)...)
	for _, m := range quotedTermRe.FindAllStringSubmatch(head, -1) {
		combined = append(combined, m[1])
	}

	seen := make(map[string]struct{}, len(combined))
	var out []string
	for _, item := range combined {
		if len(item) <= 2 {
			continue
		}
		key := strings.ToLower(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
		if len(out) == entityCapPerTurn {
			break
		}
	}
	return out
}

func dedupeFold(items []string, limit int) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, item := range items {
		key := strings.ToLower(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}

func roleLabel(r Role) string {
	if r == RoleUser {
		return "User"
	}
	return "Assistant"
}

// truncate cuts s to at most n bytes plus an ellipsis. The cut backs up to a
// rune boundary so a multi-byte character is never split.
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
