package retrieval

import (
	"container/heap"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Compile-time check that SQLiteStore implements Index.
var _ Index = (*SQLiteStore)(nil)

// SQLiteStore provides chunk storage and brute-force cosine similarity search
// backed by SQLite. List-valued metadata (section path, commands) is stored as
// JSON-encoded TEXT and decoded back to native slices on read, so consumers
// never see the storage encoding.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the chunk database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*SQLiteStore, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "docqa.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate applies embedded SQL migration files that haven't been run yet.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// parseMigrationVersion extracts the numeric prefix from "0001_name.sql".
func parseMigrationVersion(name string) (int, error) {
	idx := strings.Index(name, "_")
	if idx <= 0 {
		return 0, fmt.Errorf("migration %q has no numeric prefix", name)
	}
	v, err := strconv.Atoi(name[:idx])
	if err != nil {
		return 0, fmt.Errorf("migration %q has invalid version: %w", name, err)
	}
	return v, nil
}

// Insert adds records to the chunks table in one transaction.
func (s *SQLiteStore) Insert(records []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO chunks (id, doc_id, section_path_json, section_path_str, kind,
			step_no, has_code, commands_json, start_line, end_line, text_chunk, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		sectionJSON, err := json.Marshal(r.Meta.SectionPath)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encoding section path for %s: %w", r.ID, err)
		}
		commandsJSON, err := json.Marshal(r.Meta.Commands)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encoding commands for %s: %w", r.ID, err)
		}

		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		if _, err := stmt.Exec(
			r.ID, r.Meta.DocID, string(sectionJSON), r.Meta.SectionPathStr, r.Meta.Kind,
			r.Meta.StepNo, boolToInt(r.Meta.HasCode), string(commandsJSON),
			r.Meta.StartLine, r.Meta.EndLine, r.Text,
			encodeFloat32s(r.Embedding), createdAt.Format(time.RFC3339),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// idScore holds only the ID and similarity during the scan phase of Search.
// Full rows are fetched only for top-K winners.
type idScore struct {
	ID         string
	Similarity float32
}

// Search performs brute-force cosine similarity search over all chunks,
// returning the top-K as Hits with cosine distance (1 - similarity).
func (s *SQLiteStore) Search(vector []float32, k int) ([]Hit, error) {
	rows, err := s.db.Query(`SELECT id, embedding FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &idScoreHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		sim := cosine(vector, buf, queryNorm)
		if h.Len() < k {
			heap.Push(h, idScore{ID: id, Similarity: sim})
		} else if sim > (*h)[0].Similarity {
			(*h)[0] = idScore{ID: id, Similarity: sim}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	topIDs := make([]string, h.Len())
	sims := make(map[string]float32, h.Len())
	for i := len(topIDs) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idScore)
		topIDs[i] = item.ID
		sims[item.ID] = item.Similarity
	}

	hits, err := s.fetchHits(topIDs, sims)
	if err != nil {
		return nil, err
	}

	// IN queries don't preserve order; sort ascending by distance.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	return hits, nil
}

// fetchHits loads full rows for the winning IDs, decoding JSON metadata fields.
func (s *SQLiteStore) fetchHits(ids []string, sims map[string]float32) ([]Hit, error) {
	queryArgs := make([]interface{}, len(ids))
	for i, id := range ids {
		queryArgs[i] = id
	}

	rows, err := s.db.Query(`
		SELECT id, doc_id, section_path_json, section_path_str, kind,
			step_no, has_code, commands_json, start_line, end_line, text_chunk
		FROM chunks WHERE id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K records: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var id, sectionJSON, commandsJSON string
		var hasCode int
		var hit Hit
		if err := rows.Scan(&id, &hit.Meta.DocID, &sectionJSON, &hit.Meta.SectionPathStr,
			&hit.Meta.Kind, &hit.Meta.StepNo, &hasCode, &commandsJSON,
			&hit.Meta.StartLine, &hit.Meta.EndLine, &hit.Text); err != nil {
			return nil, fmt.Errorf("scanning full record: %w", err)
		}

		if err := json.Unmarshal([]byte(sectionJSON), &hit.Meta.SectionPath); err != nil {
			return nil, fmt.Errorf("decoding section path for %s: %w", id, err)
		}
		if err := json.Unmarshal([]byte(commandsJSON), &hit.Meta.Commands); err != nil {
			return nil, fmt.Errorf("decoding commands for %s: %w", id, err)
		}
		hit.Meta.HasCode = hasCode != 0
		hit.Distance = 1 - float64(sims[id])

		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// DeleteDoc removes all chunks belonging to a document. Returns the number of
// chunks removed.
func (s *SQLiteStore) DeleteDoc(docID string) (int, error) {
	res, err := s.db.Exec("DELETE FROM chunks WHERE doc_id = ?", docID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for %s: %w", docID, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Count returns the number of chunks in the index.
func (s *SQLiteStore) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&count)
	return count, err
}

// DocIDs returns the distinct document ids present in the index.
func (s *SQLiteStore) DocIDs() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT doc_id FROM chunks ORDER BY doc_id")
	if err != nil {
		return nil, fmt.Errorf("querying doc ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning doc id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes cosine similarity as dot(a,b) / (aNorm * bNorm).
// aNorm is the precomputed L2 norm of vector a.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// idScoreHeap is a min-heap of idScore ordered by similarity. Used during the
// scan phase of Search to track top-K candidates by ID only.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int            { return len(h) }
func (h idScoreHeap) Less(i, j int) bool  { return h[i].Similarity < h[j].Similarity }
func (h idScoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x interface{}) { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
