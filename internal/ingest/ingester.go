package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"docqa/internal/retrieval"
)

// RecordInserter inserts embedded records into the vector index.
type RecordInserter interface {
	Insert(records []retrieval.Record) error
	DeleteDoc(docID string) (int, error)
}

// BatchEmbedder embeds a batch of texts.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Ingester chunks, embeds, and indexes documentation files.
type Ingester struct {
	store    RecordInserter
	embedder BatchEmbedder
}

func New(store RecordInserter, embedder BatchEmbedder) *Ingester {
	return &Ingester{store: store, embedder: embedder}
}

// Stats summarizes one ingestion run.
type Stats struct {
	Files  int
	Chunks int
}

// IngestFile chunks one file by its extension, embeds the chunks, and
// replaces any previously indexed chunks for the same doc id. The doc id is
// the path relative to root, or the base name when root is empty.
func (in *Ingester) IngestFile(ctx context.Context, root, path string) (int, error) {
	docID := docIDFor(root, path)

	chunks, err := chunkFile(docID, path)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		slog.Debug("no chunks produced", "path", path)
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := in.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed %s: %w", path, err)
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	for i, c := range chunks {
		records[i] = retrieval.Record{
			ID:        uuid.New().String(),
			Text:      c.Text,
			Meta:      c.Meta,
			Embedding: embeddings[i],
			CreatedAt: now,
		}
	}

	if _, err := in.store.DeleteDoc(docID); err != nil {
		return 0, fmt.Errorf("replace doc %s: %w", docID, err)
	}
	if err := in.store.Insert(records); err != nil {
		return 0, fmt.Errorf("insert doc %s: %w", docID, err)
	}

	slog.Info("document indexed", "doc_id", docID, "chunks", len(records))
	return len(records), nil
}

// IngestDir walks root and ingests every supported file. Unsupported
// extensions are skipped; a failed file is logged and skipped rather than
// aborting the walk.
func (in *Ingester) IngestDir(ctx context.Context, root string) (Stats, error) {
	var stats Stats
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !supportedExt(path) {
			return nil
		}

		n, ferr := in.IngestFile(ctx, root, path)
		if ferr != nil {
			slog.Warn("skipping file", "path", path, "error", ferr)
			return nil
		}
		stats.Files++
		stats.Chunks += n
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("walk %s: %w", root, err)
	}
	return stats, nil
}

func chunkFile(docID, path string) ([]DocChunk, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err := ExtractPDF(path)
		if err != nil {
			return nil, err
		}
		return ChunkText(docID, text), nil

	case ".html", ".htm":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		text, err := ExtractHTML(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse html %s: %w", path, err)
		}
		return ChunkText(docID, text), nil

	case ".md", ".markdown":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return ChunkMarkdown(docID, string(raw)), nil

	default:
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return ChunkText(docID, string(raw)), nil
	}
}

func supportedExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt", ".pdf", ".html", ".htm":
		return true
	}
	return false
}

func docIDFor(root, path string) string {
	if root == "" {
		return filepath.Base(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}
