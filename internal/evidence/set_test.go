package evidence

import (
	"testing"

	"github.com/docent-ai/docent/internal/index"
)

func chunk(id string, score float32) ScoredChunk {
	return ScoredChunk{Chunk: index.Chunk{ID: id, DocumentID: "d1"}, Score: score}
}

func TestNewDeduplicatesAndSorts(t *testing.T) {
	s := New("q", []ScoredChunk{chunk("a", 0.5), chunk("b", 0.9), chunk("a", 0.7)})

	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	if s.Chunks[0].Chunk.ID != "b" || s.Chunks[1].Chunk.ID != "a" {
		t.Errorf("order = %v, want [b a]", s.IDs())
	}
	if got, _ := s.Find("a"); got.Score != 0.7 {
		t.Errorf("duplicate kept score %v, want max 0.7", got.Score)
	}
	if s.Chunks[0].Rank != 0 || s.Chunks[1].Rank != 1 {
		t.Errorf("ranks not assigned: %d, %d", s.Chunks[0].Rank, s.Chunks[1].Rank)
	}
}

func TestMergeKeepsMaxScore(t *testing.T) {
	a := New("q", []ScoredChunk{chunk("c1", 0.4), chunk("c2", 0.8)})
	b := New("q", []ScoredChunk{chunk("c1", 0.6), chunk("c3", 0.5)})

	m := Merge(a, b)
	if m.Len() != 3 {
		t.Fatalf("Len = %d, want 3", m.Len())
	}
	if c, _ := m.Find("c1"); c.Score != 0.6 {
		t.Errorf("c1 score = %v, want max 0.6", c.Score)
	}

	seen := make(map[string]bool)
	for _, c := range m.Chunks {
		if seen[c.Chunk.ID] {
			t.Errorf("duplicate chunk id %s after merge", c.Chunk.ID)
		}
		seen[c.Chunk.ID] = true
	}
}

func TestMergeCommutativeContent(t *testing.T) {
	a := New("first", []ScoredChunk{chunk("c1", 0.4), chunk("c2", 0.8)})
	b := New("second", []ScoredChunk{chunk("c1", 0.6), chunk("c3", 0.5)})

	ab := Merge(a, b)
	ba := Merge(b, a)

	if ab.Len() != ba.Len() {
		t.Fatalf("lengths differ: %d vs %d", ab.Len(), ba.Len())
	}
	for _, c := range ab.Chunks {
		other, ok := ba.Find(c.Chunk.ID)
		if !ok {
			t.Errorf("chunk %s missing from reversed merge", c.Chunk.ID)
			continue
		}
		if other.Score != c.Score {
			t.Errorf("chunk %s score differs: %v vs %v", c.Chunk.ID, c.Score, other.Score)
		}
	}
}

func TestMergeAdvancesSeq(t *testing.T) {
	a := New("q", nil)
	b := New("q", nil)
	b.Seq = 4

	m := Merge(a, b)
	if m.Seq != 5 {
		t.Errorf("Seq = %d, want 5", m.Seq)
	}
}

func TestMergeDeterministicTieOrder(t *testing.T) {
	a := New("q", []ScoredChunk{chunk("z", 0.5), chunk("a", 0.5)})
	if a.Chunks[0].Chunk.ID != "a" {
		t.Errorf("equal scores should order by chunk id, got %v", a.IDs())
	}
}

func TestSufficient(t *testing.T) {
	s := New("q", []ScoredChunk{chunk("c1", 0.9), chunk("c2", 0.7), chunk("c3", 0.2)})

	tests := []struct {
		name      string
		minChunks int
		minScore  float32
		want      bool
	}{
		{"two above 0.6", 2, 0.6, true},
		{"three above 0.6", 3, 0.6, false},
		{"one above 0.85", 1, 0.85, true},
		{"zero required", 0, 0.99, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sufficient(s, tt.minChunks, tt.minScore); got != tt.want {
				t.Errorf("Sufficient(%d, %v) = %v, want %v", tt.minChunks, tt.minScore, got, tt.want)
			}
		})
	}
}
