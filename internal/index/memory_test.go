package index

import (
	"context"
	"math"
	"testing"
)

func TestSimilarityBounds(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.5},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"dimension mismatch", []float32{1}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("Similarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func seedMemory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	ctx := context.Background()

	docs := []Document{
		{ID: "d1", Title: "Policy A", Embedding: []float32{1, 0}},
		{ID: "d2", Title: "Policy B", Embedding: []float32{0, 1}},
	}
	for _, d := range docs {
		if err := m.InsertDocument(ctx, d); err != nil {
			t.Fatalf("InsertDocument: %v", err)
		}
	}

	chunks := []Chunk{
		{ID: "c1", DocumentID: "d1", Offset: 0, Text: "alpha", Embedding: []float32{1, 0}},
		{ID: "c2", DocumentID: "d1", Offset: 1, Text: "beta", Embedding: []float32{0.9, 0.1}},
		{ID: "c3", DocumentID: "d1", Offset: 2, Text: "gamma", Embedding: []float32{0.5, 0.5}},
		{ID: "c4", DocumentID: "d2", Offset: 0, Text: "delta", Embedding: []float32{0, 1}},
		{ID: "c5", DocumentID: "d2", Offset: 1, Text: "epsilon", Embedding: []float32{0.1, 0.9}},
	}
	if err := m.InsertChunks(ctx, chunks); err != nil {
		t.Fatalf("InsertChunks: %v", err)
	}
	return m
}

func TestMemorySearchDocumentsOrder(t *testing.T) {
	m := seedMemory(t)

	got, err := m.SearchDocuments(context.Background(), []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("SearchDocuments: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d documents, want 2 (k > size returns all)", len(got))
	}
	if got[0].ID != "d1" || got[1].ID != "d2" {
		t.Errorf("order = [%s %s], want [d1 d2]", got[0].ID, got[1].ID)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("scores not descending: %v, %v", got[0].Score, got[1].Score)
	}
}

func TestMemorySearchTieBreakInsertionOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	// Same embedding: identical scores, insertion order must decide.
	for _, id := range []string{"first", "second", "third"} {
		if err := m.InsertDocument(ctx, Document{ID: id, Embedding: []float32{1, 1}}); err != nil {
			t.Fatalf("InsertDocument: %v", err)
		}
	}

	got, err := m.SearchDocuments(ctx, []float32{1, 1}, 3)
	if err != nil {
		t.Fatalf("SearchDocuments: %v", err)
	}
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if got[i].ID != w {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, w)
		}
	}
}

func TestMemorySearchChunksScope(t *testing.T) {
	m := seedMemory(t)

	got, err := m.SearchChunks(context.Background(), []float32{1, 0}, 10, []string{"d2"})
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	for _, c := range got {
		if c.DocumentID != "d2" {
			t.Errorf("chunk %s outside scope: document %s", c.ID, c.DocumentID)
		}
	}
}

func TestMemorySearchChunksTruncates(t *testing.T) {
	m := seedMemory(t)

	got, err := m.SearchChunks(context.Background(), []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	if got[0].ID != "c1" {
		t.Errorf("top chunk = %s, want c1", got[0].ID)
	}
}

func TestMemoryChunksByDocumentOffsetOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	// Inserted out of offset order on purpose.
	chunks := []Chunk{
		{ID: "c2", DocumentID: "d1", Offset: 2, Embedding: []float32{1}},
		{ID: "c0", DocumentID: "d1", Offset: 0, Embedding: []float32{1}},
		{ID: "c1", DocumentID: "d1", Offset: 1, Embedding: []float32{1}},
	}
	if err := m.InsertChunks(ctx, chunks); err != nil {
		t.Fatalf("InsertChunks: %v", err)
	}

	got, err := m.ChunksByDocument(ctx, []string{"d1"})
	if err != nil {
		t.Fatalf("ChunksByDocument: %v", err)
	}
	want := []string{"c0", "c1", "c2"}
	if len(got) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].ID != w {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, w)
		}
	}
}

func TestMemoryCounts(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	if n, _ := m.CountDocuments(ctx); n != 2 {
		t.Errorf("CountDocuments = %d, want 2", n)
	}
	if n, _ := m.CountChunks(ctx); n != 5 {
		t.Errorf("CountChunks = %d, want 5", n)
	}
}
