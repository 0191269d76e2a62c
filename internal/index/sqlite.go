package index

import (
	"container/heap"
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
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

// Compile-time check that SQLite implements Index.
var _ Index = (*SQLite)(nil)

// SQLite is the persistent Index backend. Similarity search is a brute-force
// scan in two phases: first only (rowid, embedding) to find the top-k
// candidates in a min-heap, then a second query for the full winning rows.
//
// Embeddings are stored as little-endian float32 blobs. Document-scope
// filtering is pushed into the WHERE clause so out-of-scope chunks never
// leave SQLite.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the index database in dataDir and runs
// pending migrations. Pass ":memory:" as dataDir for an in-memory database
// (used by tests).
func OpenSQLite(dataDir string) (*SQLite, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "docent.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: pinging database: %v", ErrUnavailable, err)
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

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
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
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

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
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
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

func parseMigrationVersion(name string) (int, error) {
	i := 0
	for i < len(name) && name[i] >= '0' && name[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("migration %q has no numeric prefix", name)
	}
	return strconv.Atoi(name[:i])
}

func (s *SQLite) InsertDocument(ctx context.Context, doc Document) error {
	published := ""
	if !doc.PublishedAt.IsZero() {
		published = doc.PublishedAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, authors, published_at, embedding)
		VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Authors, published, encodeFloat32s(doc.Embedding))
	if err != nil {
		return fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *SQLite) InsertChunks(ctx context.Context, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO chunks (id, document_id, page_start, page_end, offset_idx, text_chunk, tags, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		tags := c.Tags
		if tags == "" {
			tags = "[]"
		}
		if _, err := stmt.Exec(c.ID, c.DocumentID, c.PageStart, c.PageEnd, c.Offset, c.Text, tags, encodeFloat32s(c.Embedding)); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// rowScore holds only the rowid, item id and score during the scan phase.
// Full rows are fetched only for top-k winners.
type rowScore struct {
	RowID int64
	ID    string
	Score float32
}

func (s *SQLite) SearchDocuments(ctx context.Context, vector []float32, k int) ([]ScoredDocument, error) {
	top, err := s.scanTopK(ctx, "SELECT rowid, id, embedding FROM documents", nil, vector, k)
	if err != nil {
		return nil, err
	}
	if len(top) == 0 {
		return nil, nil
	}

	ids, scores := idsAndScores(top)
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, authors, published_at, embedding FROM documents WHERE id IN (?`+
		strings.Repeat(",?", len(ids)-1)+`)`, toArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching top documents: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	byID := make(map[string]ScoredDocument, len(ids))
	for rows.Next() {
		var d Document
		var published string
		var blob []byte
		if err := rows.Scan(&d.ID, &d.Title, &d.Authors, &published, &blob); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		if d.Embedding, err = decodeFloat32s(blob); err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", d.ID, err)
		}
		if published != "" {
			if t, err := time.Parse(time.RFC3339, published); err == nil {
				d.PublishedAt = t
			}
		}
		byID[d.ID] = ScoredDocument{Document: d, Score: scores[d.ID]}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}

	out := make([]ScoredDocument, 0, len(ids))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *SQLite) SearchChunks(ctx context.Context, vector []float32, k int, scope []string) ([]ScoredChunk, error) {
	query := "SELECT rowid, id, embedding FROM chunks"
	var args []any
	if len(scope) > 0 {
		query += " WHERE document_id IN (?" + strings.Repeat(",?", len(scope)-1) + ")"
		args = toArgs(scope)
	}

	top, err := s.scanTopK(ctx, query, args, vector, k)
	if err != nil {
		return nil, err
	}
	if len(top) == 0 {
		return nil, nil
	}

	ids, scores := idsAndScores(top)
	rows, err := s.db.QueryContext(ctx, `SELECT id, document_id, page_start, page_end, offset_idx, text_chunk, tags, embedding
		FROM chunks WHERE id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`, toArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching top chunks: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	byID := make(map[string]ScoredChunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[c.ID] = ScoredChunk{Chunk: c, Score: scores[c.ID]}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}

	out := make([]ScoredChunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// scanTopK streams (rowid, id, embedding) rows and keeps the k best scores in
// a min-heap. The result is sorted descending by score with ties broken by
// rowid, i.e. insertion order.
func (s *SQLite) scanTopK(ctx context.Context, query string, args []any, vector []float32, k int) ([]rowScore, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: scanning embeddings: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	h := &rowScoreHeap{}
	heap.Init(h)

	// Reusable buffer avoids a per-row allocation on large scans.
	var buf []float32
	for rows.Next() {
		var rs rowScore
		var blob []byte
		if err := rows.Scan(&rs.RowID, &rs.ID, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if buf, err = decodeFloat32sInto(buf, blob); err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", rs.ID, err)
		}
		rs.Score = Similarity(vector, buf)

		if h.Len() < k {
			heap.Push(h, rs)
		} else if worse((*h)[0], rs) {
			(*h)[0] = rs
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating rows: %v", ErrUnavailable, err)
	}

	out := make([]rowScore, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(rowScore)
	}
	return out, nil
}

func (s *SQLite) ChunksByDocument(ctx context.Context, docIDs []string) ([]Chunk, error) {
	var out []Chunk
	for _, docID := range docIDs {
		rows, err := s.db.QueryContext(ctx, `SELECT id, document_id, page_start, page_end, offset_idx, text_chunk, tags, embedding
			FROM chunks WHERE document_id = ? ORDER BY offset_idx ASC, rowid ASC`, docID)
		if err != nil {
			return nil, fmt.Errorf("%w: querying chunks for %s: %v", ErrUnavailable, docID, err)
		}
		for rows.Next() {
			c, err := scanChunk(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, c)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterating chunks for %s: %w", docID, err)
		}
		rows.Close()
	}
	return out, nil
}

func (s *SQLite) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: counting documents: %v", ErrUnavailable, err)
	}
	return n, nil
}

func (s *SQLite) CountChunks(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: counting chunks: %v", ErrUnavailable, err)
	}
	return n, nil
}

func scanChunk(rows *sql.Rows) (Chunk, error) {
	var c Chunk
	var blob []byte
	if err := rows.Scan(&c.ID, &c.DocumentID, &c.PageStart, &c.PageEnd, &c.Offset, &c.Text, &c.Tags, &blob); err != nil {
		return Chunk{}, fmt.Errorf("scanning chunk row: %w", err)
	}
	var err error
	if c.Embedding, err = decodeFloat32s(blob); err != nil {
		return Chunk{}, fmt.Errorf("decoding embedding for %s: %w", c.ID, err)
	}
	return c, nil
}

func idsAndScores(top []rowScore) ([]string, map[string]float32) {
	ids := make([]string, len(top))
	scores := make(map[string]float32, len(top))
	for i, t := range top {
		ids[i] = t.ID
		scores[t.ID] = t.Score
	}
	return ids, scores
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// worse reports whether a ranks below b: lower score, or same score but
// inserted later (higher rowid).
func worse(a, b rowScore) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.RowID > b.RowID
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// decodeFloat32sInto decodes into the provided buffer, reusing its capacity.
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

// rowScoreHeap is a min-heap of rowScore: the root is the current worst
// candidate, replaced whenever a better row is scanned.
type rowScoreHeap []rowScore

func (h rowScoreHeap) Len() int            { return len(h) }
func (h rowScoreHeap) Less(i, j int) bool  { return worse(h[i], h[j]) }
func (h rowScoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *rowScoreHeap) Push(x interface{}) { *h = append(*h, x.(rowScore)) }
func (h *rowScoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
