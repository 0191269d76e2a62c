// Package evidence accumulates retrieved chunks into ranked, deduplicated
// evidence sets. Sets are value types: Merge returns a new Set and never
// mutates its inputs, so a Set handed to generation stays stable.
package evidence

import (
	"sort"

	"github.com/docent-ai/docent/internal/index"
)

// ScoredChunk is a chunk selected as evidence, with its similarity score and
// selection rank within the owning Set.
type ScoredChunk struct {
	Chunk index.Chunk
	Score float32
	Rank  int
}

// Set is an ordered, deduplicated sequence of scored chunks. The uniqueness
// key is the chunk id. Order is descending by score with ties broken by
// chunk id for determinism. Seq increases monotonically across merges.
type Set struct {
	Query  string
	Seq    int
	Chunks []ScoredChunk
}

// New builds a Set from scored chunks, deduplicating by chunk id (keeping the
// higher score) and sorting descending by score.
func New(query string, chunks []ScoredChunk) Set {
	return Set{Query: query, Seq: 1, Chunks: normalize(chunks)}
}

// FromScored converts index search results into a Set.
func FromScored(query string, scored []index.ScoredChunk) Set {
	chunks := make([]ScoredChunk, len(scored))
	for i, s := range scored {
		chunks[i] = ScoredChunk{Chunk: s.Chunk, Score: s.Score}
	}
	return New(query, chunks)
}

// Merge unions two sets by chunk id. When a chunk appears in both, the higher
// score wins. The result is re-sorted descending by score and its sequence
// number advances past both inputs. Merge is commutative with respect to the
// final (chunk id, score) content.
func Merge(a, b Set) Set {
	combined := make([]ScoredChunk, 0, len(a.Chunks)+len(b.Chunks))
	combined = append(combined, a.Chunks...)
	combined = append(combined, b.Chunks...)

	query := b.Query
	if query == "" {
		query = a.Query
	}
	seq := a.Seq
	if b.Seq > seq {
		seq = b.Seq
	}
	return Set{Query: query, Seq: seq + 1, Chunks: normalize(combined)}
}

// Sufficient reports whether at least minChunks entries score at or above
// minScore. Pure function; used by the orchestrator to decide between
// widening retrieval and proceeding to generation.
func Sufficient(s Set, minChunks int, minScore float32) bool {
	n := 0
	for _, c := range s.Chunks {
		if c.Score >= minScore {
			n++
			if n >= minChunks {
				return true
			}
		}
	}
	return minChunks <= 0
}

// Len returns the number of chunks in the set.
func (s Set) Len() int { return len(s.Chunks) }

// IDs returns the chunk ids in set order.
func (s Set) IDs() []string {
	ids := make([]string, len(s.Chunks))
	for i, c := range s.Chunks {
		ids[i] = c.Chunk.ID
	}
	return ids
}

// Find returns the entry for the given chunk id.
func (s Set) Find(chunkID string) (ScoredChunk, bool) {
	for _, c := range s.Chunks {
		if c.Chunk.ID == chunkID {
			return c, true
		}
	}
	return ScoredChunk{}, false
}

func normalize(chunks []ScoredChunk) []ScoredChunk {
	best := make(map[string]ScoredChunk, len(chunks))
	order := make([]string, 0, len(chunks))
	for _, c := range chunks {
		prev, seen := best[c.Chunk.ID]
		if !seen {
			best[c.Chunk.ID] = c
			order = append(order, c.Chunk.ID)
			continue
		}
		if c.Score > prev.Score {
			best[c.Chunk.ID] = c
		}
	}

	out := make([]ScoredChunk, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})
	for i := range out {
		out[i].Rank = i
	}
	return out
}
