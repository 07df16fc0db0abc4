package conversation

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// defaultMaxConversations bounds the store; the oldest-created conversations
// are evicted when the cap is exceeded.
const defaultMaxConversations = 100

// Store maps conversation ids to Conversation instances. It is safe for
// concurrent use: the map has its own lock, and each Conversation serializes
// its own turns, so different conversations never contend with each other.
type Store struct {
	mu sync.Mutex

	conversations map[string]*Conversation
	createdOrder  map[string]int // id -> creation sequence, for eviction
	createSeq     int

	maxConversations int
	maxHistoryTurns  int
}

// NewStore creates a Store. Zero or negative caps select the defaults
// (100 conversations, 50 turns each).
func NewStore(maxConversations, maxHistoryTurns int) *Store {
	if maxConversations <= 0 {
		maxConversations = defaultMaxConversations
	}
	return &Store{
		conversations:    make(map[string]*Conversation),
		createdOrder:     make(map[string]int),
		maxConversations: maxConversations,
		maxHistoryTurns:  maxHistoryTurns,
	}
}

// GetOrCreate returns the conversation with the given id, creating a new one
// (with a fresh uuid) when id is empty or unknown.
func (s *Store) GetOrCreate(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if c, ok := s.conversations[id]; ok {
			return c
		}
	}

	if id == "" {
		id = uuid.New().String()
	}
	c := newConversation(id, s.maxHistoryTurns)
	s.conversations[id] = c
	s.createdOrder[id] = s.createSeq
	s.createSeq++

	s.evictLocked()
	return c
}

// Get returns the conversation with the given id, or nil when unknown.
func (s *Store) Get(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[id]
}

// Delete removes a conversation. Returns false when the id is unknown.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return false
	}
	delete(s.conversations, id)
	delete(s.createdOrder, id)
	return true
}

// List returns summaries of all conversations, oldest first.
func (s *Store) List() []Summary {
	s.mu.Lock()
	ordered := make([]*Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		ordered = append(ordered, c)
	}
	order := s.createdOrder
	sort.Slice(ordered, func(i, j int) bool {
		return order[ordered[i].id] < order[ordered[j].id]
	})
	s.mu.Unlock()

	summaries := make([]Summary, 0, len(ordered))
	for _, c := range ordered {
		summaries = append(summaries, c.Summary())
	}
	return summaries
}

// evictLocked removes the oldest-created conversations beyond the cap.
func (s *Store) evictLocked() {
	excess := len(s.conversations) - s.maxConversations
	if excess <= 0 {
		return
	}

	type entry struct {
		id  string
		seq int
	}
	entries := make([]entry, 0, len(s.conversations))
	for id := range s.conversations {
		entries = append(entries, entry{id: id, seq: s.createdOrder[id]})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	for _, e := range entries[:excess] {
		delete(s.conversations, e.id)
		delete(s.createdOrder, e.id)
	}
	slog.Warn("evicted oldest conversations", "count", excess)
}
