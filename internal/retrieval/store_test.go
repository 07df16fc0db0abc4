package retrieval

import (
	"math"
	"reflect"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(id, docID, section string, embedding []float32) Record {
	return Record{
		ID:   id,
		Text: "text for " + id,
		Meta: Chunk{
			DocID:          docID,
			SectionPath:    []string{"Guide", section},
			SectionPathStr: "Guide > " + section,
			Kind:           "section",
			HasCode:        true,
			Commands:       []string{"make build"},
			StartLine:      1,
			EndLine:        10,
		},
		Embedding: embedding,
		CreatedAt: time.Now().UTC(),
	}
}

func TestSearch_OrdersByCosineDistance(t *testing.T) {
	s := openTestStore(t)

	err := s.Insert([]Record{
		testRecord("r1", "a.md", "One", []float32{1, 0, 0}),
		testRecord("r2", "b.md", "Two", []float32{0.7, 0.7, 0}),
		testRecord("r3", "c.md", "Three", []float32{0, 1, 0}),
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	hits, err := s.Search([]float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("len = %d, want 3", len(hits))
	}

	if hits[0].Meta.DocID != "a.md" {
		t.Errorf("closest hit = %s, want a.md", hits[0].Meta.DocID)
	}
	if math.Abs(hits[0].Distance) > 1e-6 {
		t.Errorf("identical vector distance = %v, want 0", hits[0].Distance)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Distance < hits[i-1].Distance {
			t.Errorf("hits not in ascending distance order: %v then %v", hits[i-1].Distance, hits[i].Distance)
		}
	}
}

func TestSearch_RespectsK(t *testing.T) {
	s := openTestStore(t)

	err := s.Insert([]Record{
		testRecord("r1", "a.md", "One", []float32{1, 0}),
		testRecord("r2", "a.md", "Two", []float32{0, 1}),
		testRecord("r3", "a.md", "Three", []float32{1, 1}),
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	hits, err := s.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("len = %d, want 2", len(hits))
	}
}

func TestInsert_RoundTripsMetadata(t *testing.T) {
	s := openTestStore(t)

	rec := testRecord("r1", "setup.md", "Install", []float32{1, 0})
	rec.Meta.StepNo = 3
	if err := s.Insert([]Record{rec}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	hits, err := s.Search([]float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("len = %d, want 1", len(hits))
	}

	got := hits[0].Meta
	if !reflect.DeepEqual(got, rec.Meta) {
		t.Errorf("Meta = %+v, want %+v", got, rec.Meta)
	}
	if hits[0].Text != rec.Text {
		t.Errorf("Text = %q, want %q", hits[0].Text, rec.Text)
	}
}

func TestDeleteDoc(t *testing.T) {
	s := openTestStore(t)

	err := s.Insert([]Record{
		testRecord("r1", "a.md", "One", []float32{1, 0}),
		testRecord("r2", "a.md", "Two", []float32{0, 1}),
		testRecord("r3", "b.md", "Three", []float32{1, 1}),
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	deleted, err := s.DeleteDoc("a.md")
	if err != nil {
		t.Fatalf("DeleteDoc() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}

	docs, err := s.DocIDs()
	if err != nil {
		t.Fatalf("DocIDs() error = %v", err)
	}
	if !reflect.DeepEqual(docs, []string{"b.md"}) {
		t.Errorf("DocIDs() = %v, want [b.md]", docs)
	}
}

func TestSearch_EmptyIndex(t *testing.T) {
	s := openTestStore(t)

	hits, err := s.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("len = %d, want 0", len(hits))
	}
}
