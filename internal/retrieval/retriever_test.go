package retrieval

import (
	"context"
	"testing"

	"github.com/docent-ai/docent/internal/index"
)

// mockIndex implements index.Index for testing.
type mockIndex struct {
	searchDocsFn   func(ctx context.Context, vector []float32, k int) ([]index.ScoredDocument, error)
	searchChunksFn func(ctx context.Context, vector []float32, k int, scope []string) ([]index.ScoredChunk, error)
	byDocFn        func(ctx context.Context, docIDs []string) ([]index.Chunk, error)
}

func (m *mockIndex) SearchDocuments(ctx context.Context, vector []float32, k int) ([]index.ScoredDocument, error) {
	return m.searchDocsFn(ctx, vector, k)
}
func (m *mockIndex) SearchChunks(ctx context.Context, vector []float32, k int, scope []string) ([]index.ScoredChunk, error) {
	return m.searchChunksFn(ctx, vector, k, scope)
}
func (m *mockIndex) ChunksByDocument(ctx context.Context, docIDs []string) ([]index.Chunk, error) {
	return m.byDocFn(ctx, docIDs)
}
func (m *mockIndex) CountDocuments(context.Context) (int, error)          { return 0, nil }
func (m *mockIndex) CountChunks(context.Context) (int, error)             { return 0, nil }
func (m *mockIndex) InsertDocument(context.Context, index.Document) error { return nil }
func (m *mockIndex) InsertChunks(context.Context, []index.Chunk) error    { return nil }

func scoredChunk(id string, offset int, score float32, emb []float32) index.ScoredChunk {
	return index.ScoredChunk{
		Chunk: index.Chunk{ID: id, DocumentID: "d1", Offset: offset, Embedding: emb},
		Score: score,
	}
}

func TestRetrievePureSimilarityWithLambdaOne(t *testing.T) {
	candidates := []index.ScoredChunk{
		scoredChunk("c1", 0, 0.9, []float32{1, 0}),
		scoredChunk("c2", 1, 0.8, []float32{1, 0.1}),
		scoredChunk("c3", 2, 0.7, []float32{0, 1}),
		scoredChunk("c4", 3, 0.6, []float32{0.5, 0.5}),
	}
	idx := &mockIndex{
		searchChunksFn: func(_ context.Context, _ []float32, k int, _ []string) ([]index.ScoredChunk, error) {
			if k != 4 {
				t.Errorf("fetch k = %d, want 2*requested", k)
			}
			return candidates, nil
		},
	}

	r := NewRetriever(idx)
	set, err := r.Retrieve(context.Background(), "q", []float32{1, 0}, []string{"d1"}, 2, 1.0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	want := []string{"c1", "c2"}
	got := set.IDs()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d = %s, want %s (lambda=1 must equal plain top-k)", i, got[i], want[i])
		}
	}
}

func TestRetrieveMMRPrefersDiverseChunk(t *testing.T) {
	// c2 is almost a duplicate of c1; c3 scores lower but is orthogonal.
	// With a diversity-leaning lambda, MMR must pick c3 over c2.
	candidates := []index.ScoredChunk{
		scoredChunk("c1", 0, 0.95, []float32{1, 0}),
		scoredChunk("c2", 1, 0.94, []float32{1, 0.01}),
		scoredChunk("c3", 2, 0.70, []float32{0, 1}),
	}
	idx := &mockIndex{
		searchChunksFn: func(_ context.Context, _ []float32, _ int, _ []string) ([]index.ScoredChunk, error) {
			return candidates, nil
		},
	}

	r := NewRetriever(idx)
	set, err := r.Retrieve(context.Background(), "q", []float32{1, 0}, nil, 2, 0.5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	ids := set.IDs()
	if len(ids) != 2 {
		t.Fatalf("got %d chunks, want 2", len(ids))
	}
	if ids[0] != "c1" || ids[1] != "c3" {
		t.Errorf("selection = %v, want [c1 c3]", ids)
	}
}

func TestRetrieveMMRTieBreak(t *testing.T) {
	// Identical scores and embeddings: the tie goes to the lower offset.
	candidates := []index.ScoredChunk{
		scoredChunk("later", 5, 0.8, []float32{1, 0}),
		scoredChunk("earlier", 2, 0.8, []float32{1, 0}),
	}
	idx := &mockIndex{
		searchChunksFn: func(_ context.Context, _ []float32, _ int, _ []string) ([]index.ScoredChunk, error) {
			return candidates, nil
		},
	}

	r := NewRetriever(idx)
	set, err := r.Retrieve(context.Background(), "q", []float32{1, 0}, nil, 1, 0.5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	// Pool of 2 with k=1 runs the MMR loop (len > k).
	if got := set.IDs(); len(got) != 1 || got[0] != "earlier" {
		t.Errorf("selection = %v, want [earlier]", got)
	}
}

func TestRetrieveExhaustiveMode(t *testing.T) {
	byDocCalled := false
	idx := &mockIndex{
		searchChunksFn: func(context.Context, []float32, int, []string) ([]index.ScoredChunk, error) {
			t.Error("similarity search must not run in exhaustive mode")
			return nil, nil
		},
		byDocFn: func(_ context.Context, docIDs []string) ([]index.Chunk, error) {
			byDocCalled = true
			if len(docIDs) != 1 || docIDs[0] != "d1" {
				t.Errorf("scope = %v, want [d1]", docIDs)
			}
			return []index.Chunk{
				{ID: "c1", DocumentID: "d1", Offset: 0},
				{ID: "c2", DocumentID: "d1", Offset: 1},
				{ID: "c3", DocumentID: "d1", Offset: 2},
			}, nil
		},
	}

	r := NewRetriever(idx)
	set, err := r.Retrieve(context.Background(), AllChunks, nil, []string{"d1"}, 1, 0.9)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	want := []string{"c1", "c2", "c3"}
	got := set.IDs()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d = %s, want %s (offset order)", i, got[i], want[i])
		}
	}
	for _, c := range set.Chunks {
		if c.Score != 1 {
			t.Errorf("exhaustive chunk %s score = %v, want 1", c.Chunk.ID, c.Score)
		}
	}
	if !byDocCalled {
		t.Error("ChunksByDocument was not called")
	}
}

func TestSelectorThresholdAboveMax(t *testing.T) {
	idx := &mockIndex{
		searchDocsFn: func(context.Context, []float32, int) ([]index.ScoredDocument, error) {
			return []index.ScoredDocument{
				{Document: index.Document{ID: "d1"}, Score: 1.0},
				{Document: index.Document{ID: "d2"}, Score: 0.9},
			}, nil
		},
	}

	s := NewSelector(idx)
	// 1.1 is above the maximum possible similarity: always empty, never error.
	got, err := s.Select(context.Background(), []float32{1}, 1.1, 5)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func TestSelectorThresholdAndTruncation(t *testing.T) {
	idx := &mockIndex{
		searchDocsFn: func(_ context.Context, _ []float32, k int) ([]index.ScoredDocument, error) {
			docs := []index.ScoredDocument{
				{Document: index.Document{ID: "d1"}, Score: 0.9},
				{Document: index.Document{ID: "d2"}, Score: 0.4},
			}
			if k < len(docs) {
				docs = docs[:k]
			}
			return docs, nil
		},
	}

	s := NewSelector(idx)
	got, err := s.Select(context.Background(), []float32{1}, 0.5, 5)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 1 || got[0] != "d1" {
		t.Errorf("got %v, want [d1]", got)
	}
}

func TestTwoTierScenario(t *testing.T) {
	// Corpus: D1 (c1..c3) and D2 (c4..c5); query closest to D1.
	mem := index.NewMemory()
	ctx := context.Background()
	mem.InsertDocument(ctx, index.Document{ID: "D1", Embedding: []float32{1, 0}})
	mem.InsertDocument(ctx, index.Document{ID: "D2", Embedding: []float32{-1, 0.2}})
	mem.InsertChunks(ctx, []index.Chunk{
		{ID: "C1", DocumentID: "D1", Offset: 0, Embedding: []float32{1, 0}},
		{ID: "C2", DocumentID: "D1", Offset: 1, Embedding: []float32{0.9, 0.1}},
		{ID: "C3", DocumentID: "D1", Offset: 2, Embedding: []float32{0.8, 0.3}},
		{ID: "C4", DocumentID: "D2", Offset: 0, Embedding: []float32{-1, 0}},
		{ID: "C5", DocumentID: "D2", Offset: 1, Embedding: []float32{-0.9, 0.1}},
	})

	queryVec := []float32{1, 0}
	docs, err := NewSelector(mem).Select(ctx, queryVec, 0.5, 5)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(docs) != 1 || docs[0] != "D1" {
		t.Fatalf("shortlist = %v, want [D1]", docs)
	}

	set, err := NewRetriever(mem).Retrieve(ctx, "q", queryVec, docs, 2, 1.0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("got %d chunks, want 2", set.Len())
	}
	d1Chunks := map[string]bool{"C1": true, "C2": true, "C3": true}
	for _, id := range set.IDs() {
		if !d1Chunks[id] {
			t.Errorf("chunk %s not from D1", id)
		}
	}
	if set.Chunks[0].Score < set.Chunks[1].Score {
		t.Error("chunks not ranked by score")
	}
}
