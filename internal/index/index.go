// Package index provides similarity search over the two corpus collections:
// documents (coarse embeddings) and chunks (fine embeddings). Implementations
// are selected at construction time; retrieval code depends only on Index.
package index

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrUnavailable is returned when the backing store cannot be reached.
// Callers may retry with backoff; the index never retries internally.
var ErrUnavailable = errors.New("index unavailable")

// Document is a corpus document with its coarse embedding. Immutable once
// ingested; owned by the ingestion path, read-only to retrieval.
type Document struct {
	ID          string
	Title       string
	Authors     string
	PublishedAt time.Time
	Embedding   []float32
}

// Chunk is a contiguous slice of a document's text with its own embedding.
// Offset is the chunk's position within the document (ascending, gap-free
// ordering is not required, only monotonicity per document).
type Chunk struct {
	ID         string
	DocumentID string
	PageStart  int
	PageEnd    int
	Offset     int
	Text       string
	Tags       string // JSON array stored as text
	Embedding  []float32
}

// ScoredDocument is a Document with a similarity score attached.
type ScoredDocument struct {
	Document
	Score float32
}

// ScoredChunk is a Chunk with a similarity score attached.
type ScoredChunk struct {
	Chunk
	Score float32
}

// Index is the similarity-search contract shared by all backends.
//
// Search results are sorted descending by score with ties broken by insertion
// order (earliest-inserted first). A k larger than the collection size
// returns all items without error. Scores follow the Similarity contract.
type Index interface {
	// SearchDocuments returns the top-k documents by coarse similarity.
	SearchDocuments(ctx context.Context, vector []float32, k int) ([]ScoredDocument, error)

	// SearchChunks returns the top-k chunks by fine similarity. A non-empty
	// scope restricts the search to chunks owned by the given document ids.
	SearchChunks(ctx context.Context, vector []float32, k int, scope []string) ([]ScoredChunk, error)

	// ChunksByDocument returns every chunk owned by the given documents,
	// ordered by the docIDs argument order and then by ascending offset.
	ChunksByDocument(ctx context.Context, docIDs []string) ([]Chunk, error)

	// CountDocuments returns the number of documents in the index.
	CountDocuments(ctx context.Context) (int, error)

	// CountChunks returns the number of chunks in the index.
	CountChunks(ctx context.Context) (int, error)

	// InsertDocument adds a document. Write path for the ingestion pipeline.
	InsertDocument(ctx context.Context, doc Document) error

	// InsertChunks adds chunks. Write path for the ingestion pipeline.
	InsertChunks(ctx context.Context, chunks []Chunk) error
}

// Similarity maps cosine similarity to [0,1]: (1 + cos(a,b)) / 2, which is
// equivalent to 1 - cosineDistance/2. A zero-norm input scores 0.
func Similarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	score := (1 + cos) / 2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return float32(score)
}
