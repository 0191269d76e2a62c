package index

import (
	"context"
	"sort"
	"sync"
)

// Compile-time check that Memory implements Index.
var _ Index = (*Memory)(nil)

// Memory is the in-memory reference implementation of Index. Items are kept
// in insertion order, which is what gives the deterministic tie-break the
// Index contract requires.
type Memory struct {
	mu          sync.RWMutex
	docs        []Document
	chunks      []Chunk
	chunksByDoc map[string][]int // document id -> positions in chunks
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{chunksByDoc: make(map[string][]int)}
}

func (m *Memory) InsertDocument(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, doc)
	return nil
}

func (m *Memory) InsertChunks(_ context.Context, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunksByDoc[c.DocumentID] = append(m.chunksByDoc[c.DocumentID], len(m.chunks))
		m.chunks = append(m.chunks, c)
	}
	return nil
}

func (m *Memory) SearchDocuments(ctx context.Context, vector []float32, k int) ([]ScoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	scored := make([]ScoredDocument, len(m.docs))
	for i, d := range m.docs {
		scored[i] = ScoredDocument{Document: d, Score: Similarity(vector, d.Embedding)}
	}
	// Stable sort preserves insertion order among equal scores.
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

func (m *Memory) SearchChunks(ctx context.Context, vector []float32, k int, scope []string) ([]ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	inScope := scopeSet(scope)
	var scored []ScoredChunk
	for _, c := range m.chunks {
		if inScope != nil {
			if _, ok := inScope[c.DocumentID]; !ok {
				continue
			}
		}
		scored = append(scored, ScoredChunk{Chunk: c, Score: Similarity(vector, c.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

func (m *Memory) ChunksByDocument(ctx context.Context, docIDs []string) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Chunk
	for _, id := range docIDs {
		positions := m.chunksByDoc[id]
		docChunks := make([]Chunk, 0, len(positions))
		for _, p := range positions {
			docChunks = append(docChunks, m.chunks[p])
		}
		sort.SliceStable(docChunks, func(i, j int) bool { return docChunks[i].Offset < docChunks[j].Offset })
		out = append(out, docChunks...)
	}
	return out, nil
}

func (m *Memory) CountDocuments(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs), nil
}

func (m *Memory) CountChunks(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

func scopeSet(scope []string) map[string]struct{} {
	if len(scope) == 0 {
		return nil
	}
	s := make(map[string]struct{}, len(scope))
	for _, id := range scope {
		s[id] = struct{}{}
	}
	return s
}
